package schema

import "fmt"

// OpKind enumerates schema operations emitted by the diff planner.
type OpKind string

const (
	OpCreateTable          OpKind = "create_table"
	OpDropTable            OpKind = "drop_table"
	OpAddColumn            OpKind = "add_column"
	OpDropColumn           OpKind = "drop_column"
	OpCreateIndex          OpKind = "create_index"
	OpDropIndex            OpKind = "drop_index"
	OpAddForeignKey        OpKind = "add_foreign_key"
	OpDropForeignKey       OpKind = "drop_foreign_key"
	OpAddUniqueConstraint  OpKind = "add_unique_constraint"
	OpDropUniqueConstraint OpKind = "drop_unique_constraint"
)

// Destructive reports whether the kind removes schema objects. Destructive
// operations are suppressed by the diff unless the caller opts in, and
// refused by the runner unless AllowDestructive is set.
func (k OpKind) Destructive() bool {
	switch k {
	case OpDropTable, OpDropColumn, OpDropIndex, OpDropForeignKey, OpDropUniqueConstraint:
		return true
	}
	return false
}

// Operation is one planned schema change. Exactly the fields relevant to
// Kind are populated:
//
//	CreateTable:           Table (full definition)
//	DropTable:             TableName
//	AddColumn:             TableName, Column
//	DropColumn:            TableName, ColumnName
//	CreateIndex:           TableName, Index
//	DropIndex:             TableName, IndexName
//	AddForeignKey:         TableName, ForeignKey
//	DropForeignKey:        TableName, ConstraintName
//	AddUniqueConstraint:   TableName, Unique
//	DropUniqueConstraint:  TableName, ConstraintName
type Operation struct {
	Kind           OpKind
	TableName      string
	Table          *Table
	Column         *Column
	ColumnName     string
	Index          *Index
	IndexName      string
	ForeignKey     *ForeignKey
	Unique         *Unique
	ConstraintName string
}

// String renders a short human-readable description for progress output.
func (op Operation) String() string {
	switch op.Kind {
	case OpCreateTable:
		return fmt.Sprintf("create table %s", op.Table.Name)
	case OpDropTable:
		return fmt.Sprintf("drop table %s", op.TableName)
	case OpAddColumn:
		return fmt.Sprintf("add column %s.%s", op.TableName, op.Column.Name)
	case OpDropColumn:
		return fmt.Sprintf("drop column %s.%s", op.TableName, op.ColumnName)
	case OpCreateIndex:
		return fmt.Sprintf("create index %s on %s", op.Index.Name, op.TableName)
	case OpDropIndex:
		return fmt.Sprintf("drop index %s on %s", op.IndexName, op.TableName)
	case OpAddForeignKey:
		return fmt.Sprintf("add foreign key %s on %s", op.ForeignKey.Name, op.TableName)
	case OpDropForeignKey:
		return fmt.Sprintf("drop foreign key %s on %s", op.ConstraintName, op.TableName)
	case OpAddUniqueConstraint:
		return fmt.Sprintf("add unique constraint %s on %s", op.Unique.Name, op.TableName)
	case OpDropUniqueConstraint:
		return fmt.Sprintf("drop unique constraint %s on %s", op.ConstraintName, op.TableName)
	}
	return string(op.Kind)
}
