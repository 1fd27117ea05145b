package schema

import (
	"strings"

	"github.com/steveyegge/tandem/internal/types"
)

func errNilDefinition(current, desired *Definition) error {
	if current == nil {
		return types.InvalidArgumentf("current schema is nil")
	}
	return types.InvalidArgumentf("desired schema is nil")
}

// Diff plans the ordered operations that transform current into desired.
// It is a pure function: no I/O, deterministic output.
//
// Matching is case-insensitive by name for tables and columns. Indexes,
// foreign keys, and unique constraints are matched by name only; two
// objects sharing a name with different bodies are not reconciled.
//
// Additive operations are emitted first, in kind order CreateTable,
// AddColumn, CreateIndex, AddForeignKey, AddUniqueConstraint; within a
// kind, the desired definition's iteration order is preserved so FK
// parents are created before children. When destructive is true, drop
// operations follow in kind order DropUniqueConstraint, DropForeignKey,
// DropIndex, DropColumn, DropTable; DropTable is emitted in reverse
// current order so children drop before parents. When destructive is
// false the plan is additive-only.
func Diff(current, desired *Definition, destructive bool) ([]Operation, error) {
	if current == nil || desired == nil {
		return nil, errNilDefinition(current, desired)
	}
	if err := current.Validate(); err != nil {
		return nil, err
	}
	if err := desired.Validate(); err != nil {
		return nil, err
	}

	var creates, addCols, addIdx, addFKs, addUniq []Operation
	var dropUniq, dropFKs, dropIdx, dropCols, dropTables []Operation

	for i := range desired.Tables {
		want := &desired.Tables[i]
		have := current.Table(want.Name)
		if have == nil {
			t := *want
			creates = append(creates, Operation{Kind: OpCreateTable, TableName: t.Name, Table: &t})
			continue
		}

		for j := range want.Columns {
			col := want.Columns[j]
			if have.Column(col.Name) == nil {
				c := col
				addCols = append(addCols, Operation{Kind: OpAddColumn, TableName: want.Name, Column: &c})
			}
		}
		for j := range want.Indexes {
			ix := want.Indexes[j]
			if findIndex(have, ix.Name) == nil {
				v := ix
				addIdx = append(addIdx, Operation{Kind: OpCreateIndex, TableName: want.Name, Index: &v})
			}
		}
		for j := range want.ForeignKeys {
			fk := want.ForeignKeys[j]
			if findFK(have, fk.Name) == nil {
				v := fk
				addFKs = append(addFKs, Operation{Kind: OpAddForeignKey, TableName: want.Name, ForeignKey: &v})
			}
		}
		for j := range want.Uniques {
			u := want.Uniques[j]
			if findUnique(have, u.Name) == nil {
				v := u
				addUniq = append(addUniq, Operation{Kind: OpAddUniqueConstraint, TableName: want.Name, Unique: &v})
			}
		}

		if destructive {
			for j := range have.Uniques {
				if findUnique(want, have.Uniques[j].Name) == nil {
					dropUniq = append(dropUniq, Operation{Kind: OpDropUniqueConstraint, TableName: want.Name, ConstraintName: have.Uniques[j].Name})
				}
			}
			for j := range have.ForeignKeys {
				if findFK(want, have.ForeignKeys[j].Name) == nil {
					dropFKs = append(dropFKs, Operation{Kind: OpDropForeignKey, TableName: want.Name, ConstraintName: have.ForeignKeys[j].Name})
				}
			}
			for j := range have.Indexes {
				if findIndex(want, have.Indexes[j].Name) == nil {
					dropIdx = append(dropIdx, Operation{Kind: OpDropIndex, TableName: want.Name, IndexName: have.Indexes[j].Name})
				}
			}
			for j := range have.Columns {
				if want.Column(have.Columns[j].Name) == nil {
					dropCols = append(dropCols, Operation{Kind: OpDropColumn, TableName: want.Name, ColumnName: have.Columns[j].Name})
				}
			}
		}
	}

	if destructive {
		// Reverse current order: children were declared after their
		// parents, so they must drop first.
		for i := len(current.Tables) - 1; i >= 0; i-- {
			have := &current.Tables[i]
			if desired.Table(have.Name) == nil {
				dropTables = append(dropTables, Operation{Kind: OpDropTable, TableName: have.Name})
			}
		}
	}

	ops := make([]Operation, 0,
		len(creates)+len(addCols)+len(addIdx)+len(addFKs)+len(addUniq)+
			len(dropUniq)+len(dropFKs)+len(dropIdx)+len(dropCols)+len(dropTables))
	ops = append(ops, creates...)
	ops = append(ops, addCols...)
	ops = append(ops, addIdx...)
	ops = append(ops, addFKs...)
	ops = append(ops, addUniq...)
	ops = append(ops, dropUniq...)
	ops = append(ops, dropFKs...)
	ops = append(ops, dropIdx...)
	ops = append(ops, dropCols...)
	ops = append(ops, dropTables...)
	return ops, nil
}

// findIndex matches by name across both indexes and unique constraints:
// engines that emulate unique constraints with unique indexes (SQLite)
// report them back as indexes, and index/constraint names share one
// namespace in SQL anyway.
func findIndex(t *Table, name string) *Index {
	for i := range t.Indexes {
		if strings.EqualFold(t.Indexes[i].Name, name) {
			return &t.Indexes[i]
		}
	}
	for i := range t.Uniques {
		if strings.EqualFold(t.Uniques[i].Name, name) {
			return &Index{Name: t.Uniques[i].Name, Unique: true, Columns: t.Uniques[i].Columns}
		}
	}
	return nil
}

func findFK(t *Table, name string) *ForeignKey {
	for i := range t.ForeignKeys {
		if strings.EqualFold(t.ForeignKeys[i].Name, name) {
			return &t.ForeignKeys[i]
		}
	}
	return nil
}

// findUnique mirrors findIndex: a unique index with the same name
// satisfies a desired unique constraint.
func findUnique(t *Table, name string) *Unique {
	for i := range t.Uniques {
		if strings.EqualFold(t.Uniques[i].Name, name) {
			return &t.Uniques[i]
		}
	}
	for i := range t.Indexes {
		if t.Indexes[i].Unique && strings.EqualFold(t.Indexes[i].Name, name) {
			return &Unique{Name: t.Indexes[i].Name, Columns: t.Indexes[i].Columns}
		}
	}
	return nil
}
