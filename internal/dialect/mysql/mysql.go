// Package mysql renders schema objects and replication plumbing for
// MySQL-compatible server engines, including Dolt.
package mysql

import (
	"fmt"
	"strings"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/schema"
)

// Dialect implements dialect.Dialect for MySQL and Dolt.
type Dialect struct {
	translator dialect.DefaultTranslator
}

var _ dialect.Dialect = (*Dialect)(nil)

// New returns the MySQL dialect.
func New() *Dialect {
	d := &Dialect{}
	funcs := dialect.PassthroughFuncs("lower", "upper", "coalesce", "length", "trim", "abs", "round", "substring", "concat")
	d.translator = dialect.DefaultTranslator{
		Now:         "CURRENT_TIMESTAMP",
		CurrentDate: "(CURRENT_DATE)",
		CurrentTime: "(CURRENT_TIME)",
		UUID:        "(uuid())",
		True:        "TRUE",
		False:       "FALSE",
		Funcs:       funcs,
	}
	return d
}

func (d *Dialect) Name() string { return "mysql" }

func (d *Dialect) QuoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d *Dialect) RenderType(t schema.PortableType) string {
	switch t.Kind {
	case schema.KindInteger:
		switch {
		case t.Width <= 16:
			return "SMALLINT"
		case t.Width <= 32:
			return "INT"
		default:
			return "BIGINT"
		}
	case schema.KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case schema.KindFloat:
		return "FLOAT"
	case schema.KindDouble:
		return "DOUBLE"
	case schema.KindMoney:
		return "DECIMAL(19,4)"
	case schema.KindBoolean:
		return "TINYINT(1)"
	case schema.KindChar:
		return fmt.Sprintf("CHAR(%d)", t.Width)
	case schema.KindVarChar:
		return fmt.Sprintf("VARCHAR(%d)", t.Width)
	case schema.KindNChar:
		return fmt.Sprintf("NCHAR(%d)", t.Width)
	case schema.KindNVarChar:
		return fmt.Sprintf("NVARCHAR(%d)", t.Width)
	case schema.KindText:
		return "LONGTEXT"
	case schema.KindBinary:
		return fmt.Sprintf("BINARY(%d)", t.Width)
	case schema.KindVarBinary:
		return fmt.Sprintf("VARBINARY(%d)", t.Width)
	case schema.KindBlob:
		return "LONGBLOB"
	case schema.KindDate:
		return "DATE"
	case schema.KindTime:
		return "TIME(3)"
	case schema.KindDateTime:
		return "DATETIME(3)"
	case schema.KindDateTimeOffset:
		// MySQL has no zone-preserving type; TIMESTAMP normalizes to UTC.
		return "TIMESTAMP(3)"
	case schema.KindUUID:
		return "CHAR(36)"
	case schema.KindJSON:
		return "JSON"
	case schema.KindXML:
		return "LONGTEXT"
	}
	return "LONGTEXT"
}

func (d *Dialect) RenderDefault(dsl string) (string, error) {
	return d.translator.Translate(dsl)
}

func (d *Dialect) columnSQL(c *schema.Column) (string, error) {
	var b strings.Builder
	b.WriteString(d.QuoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(d.RenderType(c.Type))
	if !c.Nullable || c.Identity {
		b.WriteString(" NOT NULL")
	}
	if c.Identity {
		b.WriteString(" AUTO_INCREMENT")
	}
	switch {
	case c.DefaultLiteralSQL != "":
		b.WriteString(" DEFAULT " + c.DefaultLiteralSQL)
	case c.DefaultExprDSL != "":
		rendered, err := d.RenderDefault(c.DefaultExprDSL)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT " + rendered)
	}
	return b.String(), nil
}

func (d *Dialect) CreateTableSQL(t *schema.Table) (string, error) {
	var parts []string
	for i := range t.Columns {
		colSQL, err := d.columnSQL(&t.Columns[i])
		if err != nil {
			return "", err
		}
		parts = append(parts, "    "+colSQL)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "    PRIMARY KEY ("+d.identList(t.PrimaryKey)+")")
	}
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		parts = append(parts, "    "+d.fkClause(fk))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)",
		d.QuoteIdent(t.Name), strings.Join(parts, ",\n")), nil
}

func (d *Dialect) fkClause(fk *schema.ForeignKey) string {
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
		exprs := make([]string, len(ix.Expressions))
		for i, e := range ix.Expressions {
			exprs[i] = "(" + e + ")"
		}
		body = strings.Join(exprs, ", ")
	} else {
		body = d.identList(ix.Columns)
	}
	// MySQL 8.0.29+ (and Dolt) accept IF NOT EXISTS here; older servers
	// surface a duplicate-name error, which the runner treats as applied.
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, d.QuoteIdent(ix.Name), d.QuoteIdent(table), body)
}

func (d *Dialect) AddForeignKeySQL(table string, fk *schema.ForeignKey) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.QuoteIdent(table), d.fkClause(fk)), nil
}

func (d *Dialect) AddUniqueSQL(table string, u *schema.Unique) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
		d.QuoteIdent(table), d.QuoteIdent(u.Name), d.identList(u.Columns)), nil
}

func (d *Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(table)
}

func (d *Dialect) DropColumnSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(table), d.QuoteIdent(column))
}

func (d *Dialect) DropIndexSQL(table, index string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", d.QuoteIdent(index), d.QuoteIdent(table))
}

func (d *Dialect) DropForeignKeySQL(table, constraint string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.QuoteIdent(table), d.QuoteIdent(constraint)), nil
}

func (d *Dialect) DropUniqueSQL(table, constraint string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", d.QuoteIdent(table), d.QuoteIdent(constraint)), nil
}

// SupportsTransactionalDDL is false: MySQL commits implicitly around each
// DDL statement, so the runner reports failures per operation instead of
// wrapping the plan in one transaction.
func (d *Dialect) SupportsTransactionalDDL() bool { return false }

func (d *Dialect) MetadataTablesSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + dialect.LogTable + ` (
    version BIGINT NOT NULL AUTO_INCREMENT,
    table_name VARCHAR(255) NOT NULL,
    pk_value JSON NOT NULL,
    operation VARCHAR(16) NOT NULL,
    payload JSON,
    origin CHAR(36) NOT NULL,
    timestamp VARCHAR(32) NOT NULL,
    PRIMARY KEY (version),
    KEY idx_sync_log_table_version (table_name, version)
)`,
		`CREATE TABLE IF NOT EXISTS ` + dialect.StateTable + " (\n    `key` VARCHAR(64) NOT NULL,\n    value VARCHAR(255) NOT NULL,\n    PRIMARY KEY (`key`)\n)",
		`CREATE TABLE IF NOT EXISTS ` + dialect.SessionTable + ` (
    sync_active TINYINT(1) NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS ` + dialect.ClientsTable + ` (
    origin_id CHAR(36) NOT NULL,
    last_sync_version BIGINT NOT NULL DEFAULT 0,
    last_sync_timestamp DATETIME(3),
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    PRIMARY KEY (origin_id)
)`,
		`CREATE TABLE IF NOT EXISTS ` + dialect.SubscriptionsTable + ` (
    subscription_id CHAR(36) NOT NULL,
    origin_id CHAR(36) NOT NULL,
    type VARCHAR(16) NOT NULL,
    table_name VARCHAR(255) NOT NULL,
    filter LONGTEXT,
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    expires_at VARCHAR(32),
    PRIMARY KEY (subscription_id)
)`,
	}
}

// UpsertSQL renders INSERT ... ON DUPLICATE KEY UPDATE so replicated
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
		sets = append(sets, d.QuoteIdent(c)+" = VALUES("+d.QuoteIdent(c)+")")
	}
	if len(sets) == 0 {
		// All columns are key columns; touching the first key column is
		// MySQL's idiom for a no-op duplicate insert.
		sets = append(sets, d.QuoteIdent(pkColumns[0])+" = "+d.QuoteIdent(pkColumns[0]))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		d.QuoteIdent(table), d.identList(columns), strings.Join(placeholders, ", "), strings.Join(sets, ", "))
}
