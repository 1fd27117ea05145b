// Package sqlite renders schema objects and replication plumbing for
// SQLite, the embedded engine. Works with the ncruces/go-sqlite3 driver.
package sqlite

import (
	"fmt"
	"strings"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/schema"
)

// Dialect implements dialect.Dialect for SQLite.
type Dialect struct {
	translator dialect.DefaultTranslator
}

var _ dialect.Dialect = (*Dialect)(nil)

// New returns the SQLite dialect.
func New() *Dialect {
	d := &Dialect{}
	funcs := dialect.PassthroughFuncs("lower", "upper", "coalesce", "length", "trim", "abs", "round")
	funcs["substring"] = func(args []string) string {
		return "substr(" + strings.Join(args, ", ") + ")"
	}
	funcs["concat"] = func(args []string) string {
		return "(" + strings.Join(args, " || ") + ")"
	}
	d.translator = dialect.DefaultTranslator{
		Now:         "CURRENT_TIMESTAMP",
		CurrentDate: "CURRENT_DATE",
		CurrentTime: "CURRENT_TIME",
		UUID:        "(lower(hex(randomblob(16))))",
		True:        "1",
		False:       "0",
		Funcs:       funcs,
	}
	return d
}

func (d *Dialect) Name() string { return "sqlite" }

func (d *Dialect) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// RenderType maps portable types onto SQLite's affinity system. SQLite
// ignores length parameters, so sized string types all collapse to TEXT
// and sized binaries to BLOB.
func (d *Dialect) RenderType(t schema.PortableType) string {
	switch t.Kind {
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	case schema.KindFloat, schema.KindDouble:
		return "REAL"
	case schema.KindMoney:
		return "NUMERIC(19,4)"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindChar, schema.KindVarChar, schema.KindNChar, schema.KindNVarChar, schema.KindText:
		return "TEXT"
	case schema.KindBinary, schema.KindVarBinary, schema.KindBlob:
		return "BLOB"
	case schema.KindDate:
		return "DATE"
	case schema.KindTime:
		return "TIME"
	case schema.KindDateTime:
		return "DATETIME"
	case schema.KindDateTimeOffset:
		// SQLite has no zone-aware type; stored as RFC3339 text.
		return "TEXT"
	case schema.KindUUID, schema.KindJSON, schema.KindXML:
		return "TEXT"
	}
	return "TEXT"
}

func (d *Dialect) RenderDefault(dsl string) (string, error) {
	return d.translator.Translate(dsl)
}

func (d *Dialect) columnSQL(c *schema.Column) (string, error) {
	var b strings.Builder
	b.WriteString(d.QuoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(d.RenderType(c.Type))
	if c.Identity {
		// Rendered as part of the PK clause; SQLite auto-increments any
		// INTEGER PRIMARY KEY rowid alias.
		b.WriteString(" PRIMARY KEY AUTOINCREMENT")
	}
	if !c.Nullable && !c.Identity {
		b.WriteString(" NOT NULL")
	}
	switch {
	case c.DefaultLiteralSQL != "":
		b.WriteString(" DEFAULT " + c.DefaultLiteralSQL)
	case c.DefaultExprDSL != "":
		rendered, err := d.RenderDefault(c.DefaultExprDSL)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT " + wrapDefault(rendered))
	}
	return b.String(), nil
}

// wrapDefault parenthesizes expression defaults; SQLite requires parens
// around anything that is not a literal or a bare keyword.
func wrapDefault(expr string) string {
	switch expr {
	case "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME", "NULL":
		return expr
	}
	if len(expr) > 0 && (expr[0] == '\'' || expr[0] == '(' || expr[0] == '-' || (expr[0] >= '0' && expr[0] <= '9')) {
		return expr
	}
	return "(" + expr + ")"
}

func (d *Dialect) CreateTableSQL(t *schema.Table) (string, error) {
	var parts []string
	identityPK := false
	for i := range t.Columns {
		c := &t.Columns[i]
		colSQL, err := d.columnSQL(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, "    "+colSQL)
		if c.Identity {
			identityPK = true
		}
	}
	if len(t.PrimaryKey) > 0 && !identityPK {
		parts = append(parts, "    PRIMARY KEY ("+d.identList(t.PrimaryKey)+")")
	}
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		parts = append(parts, "    "+d.inlineFK(fk))
	}
	// Unique constraints are deliberately not inlined: SQLite renames the
	// backing index to sqlite_autoindex_*, which breaks name matching on
	// re-inspection. The runner emits them through AddUniqueSQL instead.
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)",
		d.QuoteIdent(t.Name), strings.Join(parts, ",\n")), nil
}

func (d *Dialect) inlineFK(fk *schema.ForeignKey) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		d.QuoteIdent(fk.Name),
		d.identList(fk.LocalColumns),
		d.QuoteIdent(fk.ReferencedTable),
		d.identList(fk.ReferencedColumns),
		fk.OnDelete, fk.OnUpdate)
}

func (d *Dialect) identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func (d *Dialect) AddColumnSQL(table string, c *schema.Column) (string, error) {
	colSQL, err := d.columnSQL(c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdent(table), colSQL), nil
}

func (d *Dialect) CreateIndexSQL(table string, ix *schema.Index) string {
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	var body string
	if len(ix.Expressions) > 0 {
		body = strings.Join(ix.Expressions, ", ")
	} else {
		body = d.identList(ix.Columns)
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, d.QuoteIdent(ix.Name), d.QuoteIdent(table), body)
}

// AddForeignKeySQL is unsupported: SQLite accepts foreign keys only inside
// CREATE TABLE. The runner reports this per-operation and continues.
func (d *Dialect) AddForeignKeySQL(table string, fk *schema.ForeignKey) (string, error) {
	return "", fmt.Errorf("sqlite: cannot add foreign key %s to existing table %s; foreign keys must be declared at table creation", fk.Name, table)
}

// AddUniqueSQL emulates a named unique constraint with a unique index,
// which SQLite treats identically for enforcement.
func (d *Dialect) AddUniqueSQL(table string, u *schema.Unique) (string, error) {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		d.QuoteIdent(u.Name), d.QuoteIdent(table), d.identList(u.Columns)), nil
}

func (d *Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(table)
}

func (d *Dialect) DropColumnSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(table), d.QuoteIdent(column))
}

func (d *Dialect) DropIndexSQL(table, index string) string {
	return "DROP INDEX IF EXISTS " + d.QuoteIdent(index)
}

func (d *Dialect) DropForeignKeySQL(table, constraint string) (string, error) {
	return "", fmt.Errorf("sqlite: cannot drop foreign key %s on %s; requires table rebuild", constraint, table)
}

func (d *Dialect) DropUniqueSQL(table, constraint string) (string, error) {
	// Mirrors AddUniqueSQL's index emulation.
	return "DROP INDEX IF EXISTS " + d.QuoteIdent(constraint), nil
}

func (d *Dialect) SupportsTransactionalDDL() bool { return true }

// MetadataTablesSQL renders the _sync_* tables. The log's version column
// is the rowid alias, giving the strictly monotonic counter for free.
func (d *Dialect) MetadataTablesSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + dialect.LogTable + ` (
    version INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL,
    pk_value TEXT NOT NULL,
    operation TEXT NOT NULL,
    payload TEXT,
    origin TEXT NOT NULL,
    timestamp TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_log_table_version ON ` + dialect.LogTable + `(table_name, version)`,
		`CREATE TABLE IF NOT EXISTS ` + dialect.StateTable + ` (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + dialect.SessionTable + ` (
    sync_active INTEGER NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS ` + dialect.ClientsTable + ` (
    origin_id TEXT PRIMARY KEY,
    last_sync_version INTEGER NOT NULL DEFAULT 0,
    last_sync_timestamp DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE TABLE IF NOT EXISTS ` + dialect.SubscriptionsTable + ` (
    subscription_id TEXT PRIMARY KEY,
    origin_id TEXT NOT NULL,
    type TEXT NOT NULL,
    table_name TEXT NOT NULL,
    filter TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    expires_at TEXT
)`,
	}
}

// UpsertSQL renders INSERT ... ON CONFLICT (pk) DO UPDATE so replicated
// inserts and updates are both idempotent against existing rows. A nil
// updateColumns updates every non-key column.
func (d *Dialect) UpsertSQL(table string, columns, pkColumns, updateColumns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}
	pk := map[string]bool{}
	for _, p := range pkColumns {
		pk[strings.ToLower(p)] = true
	}
	update := updateColumns
	if update == nil {
		update = columns
	}
	var sets []string
	for _, c := range update {
		if pk[strings.ToLower(c)] {
			continue
		}
		sets = append(sets, d.QuoteIdent(c)+" = excluded."+d.QuoteIdent(c))
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO ",
		d.QuoteIdent(table), d.identList(columns), strings.Join(placeholders, ", "), d.identList(pkColumns))
	if len(sets) == 0 {
		return stmt + "NOTHING"
	}
	return stmt + "UPDATE SET " + strings.Join(sets, ", ")
}
