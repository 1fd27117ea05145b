package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/schema"
)

// Inspect reads the live schema from information_schema, scoped to the
// current database (DATABASE()).
func (d *Dialect) Inspect(ctx context.Context, db *sql.DB) (*schema.Definition, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("inspect tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("inspect tables: %w", err)
		}
		if dialect.IsMetaTable(name) {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect tables: %w", err)
	}

	def := &schema.Definition{}
	for _, name := range names {
		t, err := d.inspectTable(ctx, db, name)
		if err != nil {
			return nil, err
		}
		def.Tables = append(def.Tables, *t)
	}
	return def, nil
}

func (d *Dialect) inspectTable(ctx context.Context, db *sql.DB, name string) (*schema.Table, error) {
	t := &schema.Table{Name: name}

	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type,
		        COALESCE(character_maximum_length, 0),
		        COALESCE(numeric_precision, 0), COALESCE(numeric_scale, 0),
		        is_nullable, extra, column_default
		 FROM information_schema.columns
		 WHERE table_schema = DATABASE() AND table_name = ?
		 ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", name, err)
	}
	for rows.Next() {
		var colName, dataType, nullable, extra string
		var charLen, numPrec, numScale int64
		var colDefault sql.NullString
		if err := rows.Scan(&colName, &dataType, &charLen, &numPrec, &numScale, &nullable, &extra, &colDefault); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("inspect %s columns: %w", name, err)
		}
		col := schema.Column{
			Name:     colName,
			Type:     parseDataType(dataType, int(charLen), int(numPrec), int(numScale)),
			Nullable: strings.EqualFold(nullable, "YES"),
			Identity: strings.Contains(strings.ToLower(extra), "auto_increment"),
		}
		if colDefault.Valid {
			col.DefaultLiteralSQL = colDefault.String
		}
		t.Columns = append(t.Columns, col)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", name, err)
	}

	if err := d.inspectPrimaryKey(ctx, db, t); err != nil {
		return nil, err
	}
	if err := d.inspectIndexes(ctx, db, t); err != nil {
		return nil, err
	}
	if err := d.inspectForeignKeys(ctx, db, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Dialect) inspectPrimaryKey(ctx context.Context, db *sql.DB, t *schema.Table) error {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.key_column_usage
		 WHERE table_schema = DATABASE() AND table_name = ? AND constraint_name = 'PRIMARY'
		 ORDER BY ordinal_position`, t.Name)
	if err != nil {
		return fmt.Errorf("inspect %s primary key: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return fmt.Errorf("inspect %s primary key: %w", t.Name, err)
		}
		t.PrimaryKey = append(t.PrimaryKey, col)
	}
	return rows.Err()
}

func (d *Dialect) inspectIndexes(ctx context.Context, db *sql.DB, t *schema.Table) error {
	rows, err := db.QueryContext(ctx,
		`SELECT index_name, non_unique, COALESCE(column_name, ''), COALESCE(expression, '')
		 FROM information_schema.statistics
		 WHERE table_schema = DATABASE() AND table_name = ? AND index_name != 'PRIMARY'
		 ORDER BY index_name, seq_in_index`, t.Name)
	if err != nil {
		return fmt.Errorf("inspect %s indexes: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()

	byName := map[string]*schema.Index{}
	var order []string
	for rows.Next() {
		var idxName, colName, expr string
		var nonUnique int
		if err := rows.Scan(&idxName, &nonUnique, &colName, &expr); err != nil {
			return fmt.Errorf("inspect %s indexes: %w", t.Name, err)
		}
		ix, ok := byName[idxName]
		if !ok {
			ix = &schema.Index{Name: idxName, Unique: nonUnique == 0}
			byName[idxName] = ix
			order = append(order, idxName)
		}
		if expr != "" {
			ix.Expressions = append(ix.Expressions, expr)
		} else if colName != "" {
			ix.Columns = append(ix.Columns, colName)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s indexes: %w", t.Name, err)
	}

	// Indexes that back foreign keys are implicit; they still appear here
	// and are reported as-is. Matching is by name, so this is harmless.
	for _, idxName := range order {
		t.Indexes = append(t.Indexes, *byName[idxName])
	}
	return nil
}

func (d *Dialect) inspectForeignKeys(ctx context.Context, db *sql.DB, t *schema.Table) error {
	rows, err := db.QueryContext(ctx,
		`SELECT kcu.constraint_name, kcu.column_name, kcu.referenced_table_name,
		        kcu.referenced_column_name, rc.delete_rule, rc.update_rule
		 FROM information_schema.key_column_usage kcu
		 JOIN information_schema.referential_constraints rc
		   ON rc.constraint_schema = kcu.table_schema AND rc.constraint_name = kcu.constraint_name
		 WHERE kcu.table_schema = DATABASE() AND kcu.table_name = ?
		   AND kcu.referenced_table_name IS NOT NULL
		 ORDER BY kcu.constraint_name, kcu.ordinal_position`, t.Name)
	if err != nil {
		return fmt.Errorf("inspect %s foreign keys: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()

	byName := map[string]*schema.ForeignKey{}
	var order []string
	for rows.Next() {
		var conName, col, refTable, refCol, delRule, updRule string
		if err := rows.Scan(&conName, &col, &refTable, &refCol, &delRule, &updRule); err != nil {
			return fmt.Errorf("inspect %s foreign keys: %w", t.Name, err)
		}
		fk, ok := byName[conName]
		if !ok {
			fk = &schema.ForeignKey{
				Name:            conName,
				ReferencedTable: refTable,
				OnDelete:        schema.RefAction(delRule),
				OnUpdate:        schema.RefAction(updRule),
			}
			byName[conName] = fk
			order = append(order, conName)
		}
		fk.LocalColumns = append(fk.LocalColumns, col)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refCol)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s foreign keys: %w", t.Name, err)
	}

	for _, conName := range order {
		t.ForeignKeys = append(t.ForeignKeys, *byName[conName])
	}
	return nil
}

func parseDataType(dataType string, charLen, numPrec, numScale int) schema.PortableType {
	switch strings.ToLower(dataType) {
	case "tinyint":
		// TINYINT(1) is the boolean rendering; width is not available
		// here, so tinyint maps to boolean across the board.
		return schema.Bool()
	case "smallint":
		return schema.Integer(16)
	case "int", "mediumint":
		return schema.Integer(32)
	case "bigint":
		return schema.Integer(64)
	case "decimal", "numeric":
		return schema.Decimal(numPrec, numScale)
	case "float":
		return schema.Float()
	case "double":
		return schema.Double()
	case "char":
		if charLen == 36 {
			return schema.UUID()
		}
		return schema.Char(charLen)
	case "varchar":
		return schema.VarChar(charLen)
	case "text", "mediumtext", "longtext", "tinytext":
		return schema.Text()
	case "binary":
		return schema.Binary(charLen)
	case "varbinary":
		return schema.VarBinary(charLen)
	case "blob", "mediumblob", "longblob", "tinyblob":
		return schema.Blob()
	case "date":
		return schema.Date()
	case "time":
		return schema.Time()
	case "datetime":
		return schema.DateTime()
	case "timestamp":
		return schema.DateTimeOffset()
	case "json":
		return schema.JSON()
	default:
		return schema.Text()
	}
}
