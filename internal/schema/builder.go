package schema

import "strings"

// TableBuilder assembles a Table declaratively. The zero value is not
// usable; start with NewTable.
//
//	person := schema.NewTable("person").
//		Column("id", schema.UUID(), schema.NotNull()).
//		Column("name", schema.VarChar(200), schema.NotNull()).
//		Column("created_at", schema.DateTime(), schema.DefaultExpr("now()")).
//		PrimaryKey("id").
//		Index("idx_person_name", "name").
//		Build()
type TableBuilder struct {
	t Table
}

// NewTable starts a builder for the named table.
func NewTable(name string) *TableBuilder {
	return &TableBuilder{t: Table{Name: name}}
}

// InSchema sets the schema (namespace) qualifier.
func (b *TableBuilder) InSchema(schemaName string) *TableBuilder {
	b.t.Schema = schemaName
	return b
}

// ColumnOption mutates a column under construction.
type ColumnOption func(*Column)

// NotNull marks the column NOT NULL. Columns are nullable by default.
func NotNull() ColumnOption {
	return func(c *Column) { c.Nullable = false }
}

// Identity marks the column as engine-assigned auto-increment. Only valid
// on integer columns; Validate enforces this.
func Identity() ColumnOption {
	return func(c *Column) { c.Identity = true }
}

// DefaultSQL sets a verbatim SQL default. Use this for case-significant
// string defaults; it bypasses DSL normalization entirely.
func DefaultSQL(sql string) ColumnOption {
	return func(c *Column) { c.DefaultLiteralSQL = sql }
}

// DefaultExpr sets a default in the portable expression DSL (now(),
// gen_uuid(), literals, a small set of scalar functions). Note that DSL
// normalization lowercases the expression, including the contents of
// quoted string literals.
func DefaultExpr(dsl string) ColumnOption {
	return func(c *Column) { c.DefaultExprDSL = dsl }
}

// Column appends a column. Columns default to nullable, non-identity.
func (b *TableBuilder) Column(name string, typ PortableType, opts ...ColumnOption) *TableBuilder {
	c := Column{Name: name, Type: typ, Nullable: true}
	for _, opt := range opts {
		opt(&c)
	}
	b.t.Columns = append(b.t.Columns, c)
	return b
}

// PrimaryKey sets the ordered primary key columns.
func (b *TableBuilder) PrimaryKey(columns ...string) *TableBuilder {
	b.t.PrimaryKey = columns
	return b
}

// Index appends a non-unique column index.
func (b *TableBuilder) Index(name string, columns ...string) *TableBuilder {
	b.t.Indexes = append(b.t.Indexes, Index{Name: name, Columns: columns})
	return b
}

// UniqueIndex appends a unique column index.
func (b *TableBuilder) UniqueIndex(name string, columns ...string) *TableBuilder {
	b.t.Indexes = append(b.t.Indexes, Index{Name: name, Unique: true, Columns: columns})
	return b
}

// ExpressionIndex appends an expression index. Expressions are emitted
// verbatim into the index DDL.
func (b *TableBuilder) ExpressionIndex(name string, expressions ...string) *TableBuilder {
	b.t.Indexes = append(b.t.Indexes, Index{Name: name, Expressions: expressions})
	return b
}

// ForeignKey appends a single-column foreign key with NO ACTION semantics.
func (b *TableBuilder) ForeignKey(localColumn, referencedTable, referencedColumn string) *TableBuilder {
	return b.ForeignKeyFull(ForeignKey{
		LocalColumns:      []string{localColumn},
		ReferencedTable:   referencedTable,
		ReferencedColumns: []string{referencedColumn},
		OnDelete:          NoAction,
		OnUpdate:          NoAction,
	})
}

// ForeignKeyFull appends a fully specified foreign key. A missing name is
// derived from the table and local columns so the diff can match it.
func (b *TableBuilder) ForeignKeyFull(fk ForeignKey) *TableBuilder {
	if fk.Name == "" {
		fk.Name = "fk_" + strings.ToLower(b.t.Name) + "_" + strings.ToLower(strings.Join(fk.LocalColumns, "_"))
	}
	if fk.OnDelete == "" {
		fk.OnDelete = NoAction
	}
	if fk.OnUpdate == "" {
		fk.OnUpdate = NoAction
	}
	b.t.ForeignKeys = append(b.t.ForeignKeys, fk)
	return b
}

// Unique appends a named unique constraint.
func (b *TableBuilder) Unique(name string, columns ...string) *TableBuilder {
	b.t.Uniques = append(b.t.Uniques, Unique{Name: name, Columns: columns})
	return b
}

// Build returns the assembled table.
func (b *TableBuilder) Build() Table {
	return b.t
}

// Builder assembles a Definition. Table order is significant: list FK
// parents before children.
type Builder struct {
	d Definition
}

// New starts an empty schema builder.
func New() *Builder {
	return &Builder{}
}

// Table appends a finished table.
func (b *Builder) Table(t Table) *Builder {
	b.d.Tables = append(b.d.Tables, t)
	return b
}

// Build validates and returns the definition.
func (b *Builder) Build() (*Definition, error) {
	d := b.d
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
