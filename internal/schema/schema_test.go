package schema

import (
	"strings"
	"testing"
)

func TestValidateRejectsDuplicateColumns(t *testing.T) {
	tab := NewTable("t").
		Column("a", Text()).
		Column("A", Text()).
		Build()
	d := Definition{Tables: []Table{tab}}
	if err := d.Validate(); err == nil {
		t.Error("duplicate column names (case-insensitive) accepted")
	}
}

func TestValidateRejectsDoubleDefault(t *testing.T) {
	tab := NewTable("t").
		Column("a", Text(), DefaultSQL("'x'"), DefaultExpr("now()")).
		Build()
	d := Definition{Tables: []Table{tab}}
	if err := d.Validate(); err == nil {
		t.Error("column with both default forms accepted")
	}
}

func TestValidateIdentityRequiresInteger(t *testing.T) {
	tab := NewTable("t").
		Column("id", VarChar(20), Identity()).
		Build()
	d := Definition{Tables: []Table{tab}}
	if err := d.Validate(); err == nil {
		t.Error("identity on non-integer column accepted")
	}
}

func TestValidateIndexShape(t *testing.T) {
	tab := NewTable("t").Column("a", Text()).Build()
	tab.Indexes = []Index{{Name: "idx_both", Columns: []string{"a"}, Expressions: []string{"lower(a)"}}}
	d := Definition{Tables: []Table{tab}}
	if err := d.Validate(); err == nil {
		t.Error("index with both columns and expressions accepted")
	}
}

func TestForeignKeyNameDerivation(t *testing.T) {
	tab := NewTable("Tasks").
		Column("id", Integer(64), NotNull()).
		Column("project_id", Integer(64)).
		PrimaryKey("id").
		ForeignKey("project_id", "projects", "id").
		Build()
	if len(tab.ForeignKeys) != 1 {
		t.Fatalf("fk count = %d", len(tab.ForeignKeys))
	}
	if got := tab.ForeignKeys[0].Name; got != "fk_tasks_project_id" {
		t.Errorf("derived fk name = %q", got)
	}
}

func TestPortableTypeString(t *testing.T) {
	cases := []struct {
		typ  PortableType
		want string
	}{
		{Integer(32), "integer(32)"},
		{VarChar(255), "varchar(255)"},
		{Decimal(10, 2), "decimal(10,2)"},
		{Text(), "text"},
	}
	for _, c := range cases {
		if got := c.typ.String(); !strings.EqualFold(got, c.want) {
			t.Errorf("%v.String() = %q, want %q", c.typ, got, c.want)
		}
	}
}
