package schema

import (
	"strings"

	"github.com/steveyegge/tandem/internal/types"
)

// RefAction is a foreign key referential action.
type RefAction string

const (
	NoAction   RefAction = "NO ACTION"
	Cascade    RefAction = "CASCADE"
	SetNull    RefAction = "SET NULL"
	SetDefault RefAction = "SET DEFAULT"
	Restrict   RefAction = "RESTRICT"
)

// Column describes one table column.
//
// At most one of DefaultLiteralSQL / DefaultExprDSL may be set.
// DefaultLiteralSQL is emitted verbatim; DefaultExprDSL goes through the
// default-expression translator, which normalizes case — including the
// contents of quoted string literals. Case-significant string defaults
// therefore belong in DefaultLiteralSQL.
type Column struct {
	Name              string
	Type              PortableType
	Nullable          bool
	Identity          bool
	DefaultLiteralSQL string
	DefaultExprDSL    string
}

// Index describes a column index or an expression index. Exactly one of
// Columns / Expressions is non-empty. Indexes are matched by name only
// during diffing: two indexes with the same name but different bodies are
// not reconciled (rename the index, or drop and recreate under
// destructive mode).
type Index struct {
	Name        string
	Unique      bool
	Columns     []string
	Expressions []string
}

// ForeignKey describes a foreign key constraint. Name is used for diff
// matching and DDL; when empty the builder derives one from the table and
// local columns.
type ForeignKey struct {
	Name              string
	LocalColumns      []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          RefAction
	OnUpdate          RefAction
}

// Unique describes a named unique constraint.
type Unique struct {
	Name    string
	Columns []string
}

// Table describes one table. Identifier comparison throughout the package
// is case-insensitive.
type Table struct {
	Schema      string
	Name        string
	Columns     []Column
	PrimaryKey  []string
	Indexes     []Index
	ForeignKeys []ForeignKey
	Uniques     []Unique
}

// Definition is an ordered set of tables. Order is preserved from the
// builder because creation order must satisfy FK dependencies; the diff
// reuses this order when emitting creations.
type Definition struct {
	Tables []Table
}

// identEqual compares SQL identifiers case-insensitively.
func identEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if identEqual(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// Table returns the named table, or nil.
func (d *Definition) Table(name string) *Table {
	for i := range d.Tables {
		if identEqual(d.Tables[i].Name, name) {
			return &d.Tables[i]
		}
	}
	return nil
}

// Validate checks structural invariants: unique table and column names
// (case-insensitive), at most one default per column, identity only on
// integer columns, exactly one of columns/expressions per index.
func (d *Definition) Validate() error {
	seenTables := map[string]bool{}
	for i := range d.Tables {
		t := &d.Tables[i]
		key := strings.ToLower(t.Name)
		if seenTables[key] {
			return types.InvalidArgumentf("duplicate table %q", t.Name)
		}
		seenTables[key] = true
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single table's invariants.
func (t *Table) Validate() error {
	if t.Name == "" {
		return types.InvalidArgumentf("table with empty name")
	}
	seen := map[string]bool{}
	for i := range t.Columns {
		c := &t.Columns[i]
		key := strings.ToLower(c.Name)
		if seen[key] {
			return types.InvalidArgumentf("table %q: duplicate column %q", t.Name, c.Name)
		}
		seen[key] = true
		if c.DefaultLiteralSQL != "" && c.DefaultExprDSL != "" {
			return types.InvalidArgumentf("table %q column %q: both default literal and default expression set", t.Name, c.Name)
		}
		if c.Identity && !c.Type.IsInteger() {
			return types.InvalidArgumentf("table %q column %q: identity requires an integer type", t.Name, c.Name)
		}
	}
	for _, pk := range t.PrimaryKey {
		if t.Column(pk) == nil {
			return types.InvalidArgumentf("table %q: primary key column %q does not exist", t.Name, pk)
		}
	}
	for i := range t.Indexes {
		ix := &t.Indexes[i]
		if ix.Name == "" {
			return types.InvalidArgumentf("table %q: index with empty name", t.Name)
		}
		hasCols := len(ix.Columns) > 0
		hasExprs := len(ix.Expressions) > 0
		if hasCols == hasExprs {
			return types.InvalidArgumentf("table %q index %q: exactly one of columns or expressions must be set", t.Name, ix.Name)
		}
	}
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		if len(fk.LocalColumns) == 0 || len(fk.ReferencedColumns) == 0 {
			return types.InvalidArgumentf("table %q foreign key %q: empty column list", t.Name, fk.Name)
		}
		if len(fk.LocalColumns) != len(fk.ReferencedColumns) {
			return types.InvalidArgumentf("table %q foreign key %q: column count mismatch", t.Name, fk.Name)
		}
	}
	for i := range t.Uniques {
		u := &t.Uniques[i]
		if u.Name == "" || len(u.Columns) == 0 {
			return types.InvalidArgumentf("table %q: unique constraint needs a name and columns", t.Name)
		}
	}
	return nil
}
