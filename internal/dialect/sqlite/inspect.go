package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/schema"
)

// Inspect reads the live schema through the sqlite_master catalog and the
// table_info / index_list / foreign_key_list pragmas.
//
// Limitations inherent to SQLite's catalog:
//   - expression index bodies are recovered textually from the stored
//     CREATE INDEX statement where possible;
//   - foreign keys are unnamed, so names are re-derived the same way the
//     builder derives them (fk_<table>_<localcols>);
//   - unique constraints emitted as unique indexes come back as indexes.
func (d *Dialect) Inspect(ctx context.Context, db *sql.DB) (*schema.Definition, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("inspect tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type tableRow struct {
		name string
		sql  string
	}
	var tables []tableRow
	for rows.Next() {
		var tr tableRow
		var createSQL sql.NullString
		if err := rows.Scan(&tr.name, &createSQL); err != nil {
			return nil, fmt.Errorf("inspect tables: %w", err)
		}
		if dialect.IsMetaTable(tr.name) {
			continue
		}
		tr.sql = createSQL.String
		tables = append(tables, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect tables: %w", err)
	}

	def := &schema.Definition{}
	for _, tr := range tables {
		t, err := d.inspectTable(ctx, db, tr.name, tr.sql)
		if err != nil {
			return nil, err
		}
		def.Tables = append(def.Tables, *t)
	}
	return def, nil
}

func (d *Dialect) inspectTable(ctx context.Context, db *sql.DB, name, createSQL string) (*schema.Table, error) {
	t := &schema.Table{Name: name}
	autoinc := strings.Contains(strings.ToUpper(createSQL), "AUTOINCREMENT")

	type pkCol struct {
		name string
		ord  int
	}
	var pkCols []pkCol

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, d.QuoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", name, err)
	}
	for rows.Next() {
		var cid, notNull, pk int
		var colName, declType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &colName, &declType, &notNull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("inspect %s columns: %w", name, err)
		}
		col := schema.Column{
			Name:     colName,
			Type:     parseDeclType(declType),
			Nullable: notNull == 0,
		}
		if dflt.Valid {
			col.DefaultLiteralSQL = dflt.String
		}
		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: colName, ord: pk})
			if autoinc && col.Type.IsInteger() {
				col.Identity = true
				col.Nullable = false
			}
		}
		t.Columns = append(t.Columns, col)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", name, err)
	}

	sort.Slice(pkCols, func(i, j int) bool { return pkCols[i].ord < pkCols[j].ord })
	for _, pc := range pkCols {
		t.PrimaryKey = append(t.PrimaryKey, pc.name)
	}

	if err := d.inspectIndexes(ctx, db, t); err != nil {
		return nil, err
	}
	if err := d.inspectForeignKeys(ctx, db, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Dialect) inspectIndexes(ctx context.Context, db *sql.DB, t *schema.Table) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list(%s)`, d.QuoteIdent(t.Name)))
	if err != nil {
		return fmt.Errorf("inspect %s indexes: %w", t.Name, err)
	}
	type idxRow struct {
		name   string
		unique bool
	}
	var idxRows []idxRow
	for rows.Next() {
		var seq, unique, partial int
		var idxName, origin string
		if err := rows.Scan(&seq, &idxName, &unique, &origin, &partial); err != nil {
			_ = rows.Close()
			return fmt.Errorf("inspect %s indexes: %w", t.Name, err)
		}
		// Skip the implicit indexes SQLite creates for PRIMARY KEY and
		// inline UNIQUE; only user-created indexes are diffable by name.
		if origin != "c" || strings.HasPrefix(idxName, "sqlite_autoindex") {
			continue
		}
		idxRows = append(idxRows, idxRow{name: idxName, unique: unique == 1})
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s indexes: %w", t.Name, err)
	}

	for _, ir := range idxRows {
		ix := schema.Index{Name: ir.name, Unique: ir.unique}
		cols, hasExpr, err := d.indexColumns(ctx, db, ir.name)
		if err != nil {
			return err
		}
		if hasExpr {
			expr, err := d.indexExpression(ctx, db, ir.name)
			if err != nil {
				return err
			}
			ix.Expressions = []string{expr}
		} else {
			ix.Columns = cols
		}
		t.Indexes = append(t.Indexes, ix)
	}
	return nil
}

func (d *Dialect) indexColumns(ctx context.Context, db *sql.DB, index string) (cols []string, hasExpr bool, err error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_info(%s)`, d.QuoteIdent(index)))
	if err != nil {
		return nil, false, fmt.Errorf("inspect index %s: %w", index, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var seqno, cid int
		var colName sql.NullString
		if err := rows.Scan(&seqno, &cid, &colName); err != nil {
			return nil, false, fmt.Errorf("inspect index %s: %w", index, err)
		}
		if !colName.Valid {
			hasExpr = true
			continue
		}
		cols = append(cols, colName.String)
	}
	return cols, hasExpr, rows.Err()
}

var indexBodyRe = regexp.MustCompile(`(?is)\(\s*(.+)\s*\)\s*$`)

// indexExpression recovers the expression text from the stored CREATE
// INDEX statement. Best effort: when the statement is unavailable the
// body is opaque, which still diffs correctly since matching is by name.
func (d *Dialect) indexExpression(ctx context.Context, db *sql.DB, index string) (string, error) {
	var createSQL sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&createSQL)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("inspect index %s: %w", index, err)
	}
	if m := indexBodyRe.FindStringSubmatch(createSQL.String); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return "<expression>", nil
}

func (d *Dialect) inspectForeignKeys(ctx context.Context, db *sql.DB, t *schema.Table) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%s)`, d.QuoteIdent(t.Name)))
	if err != nil {
		return fmt.Errorf("inspect %s foreign keys: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()

	byID := map[int]*schema.ForeignKey{}
	var order []int
	for rows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return fmt.Errorf("inspect %s foreign keys: %w", t.Name, err)
		}
		fk, ok := byID[id]
		if !ok {
			fk = &schema.ForeignKey{
				ReferencedTable: refTable,
				OnDelete:        schema.RefAction(onDelete),
				OnUpdate:        schema.RefAction(onUpdate),
			}
			byID[id] = fk
			order = append(order, id)
		}
		fk.LocalColumns = append(fk.LocalColumns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s foreign keys: %w", t.Name, err)
	}

	sort.Ints(order)
	for _, id := range order {
		fk := byID[id]
		// SQLite does not preserve constraint names through the pragma;
		// re-derive them the way the builder does so diffing matches.
		fk.Name = "fk_" + strings.ToLower(t.Name) + "_" + strings.ToLower(strings.Join(fk.LocalColumns, "_"))
		t.ForeignKeys = append(t.ForeignKeys, *fk)
	}
	return nil
}

var declParamsRe = regexp.MustCompile(`^([A-Za-z ]+)(?:\((\d+)(?:\s*,\s*(\d+))?\))?$`)

// parseDeclType maps a declared SQLite type back onto the portable model.
// The diff never compares types, so lossy mappings (TEXT covering uuid,
// json, varchar) are acceptable here.
func parseDeclType(decl string) schema.PortableType {
	decl = strings.TrimSpace(decl)
	base := decl
	p1, p2 := 0, 0
	if m := declParamsRe.FindStringSubmatch(decl); m != nil {
		base = strings.TrimSpace(m[1])
		p1, _ = strconv.Atoi(m[2])
		p2, _ = strconv.Atoi(m[3])
	}
	switch strings.ToUpper(base) {
	case "INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT":
		return schema.Integer(64)
	case "NUMERIC", "DECIMAL":
		return schema.Decimal(p1, p2)
	case "REAL", "DOUBLE", "FLOAT":
		return schema.Double()
	case "BOOLEAN", "BOOL":
		return schema.Bool()
	case "BLOB":
		return schema.Blob()
	case "DATE":
		return schema.Date()
	case "TIME":
		return schema.Time()
	case "DATETIME", "TIMESTAMP":
		return schema.DateTime()
	default:
		return schema.Text()
	}
}
