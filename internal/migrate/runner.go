// Package migrate executes planned schema operations against a live
// engine. Planning is pure (internal/schema.Diff); this package owns the
// side effects.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/types"
)

// Options controls how a plan is applied.
type Options struct {
	// AllowDestructive permits drop-kind operations. When false, a plan
	// containing any drop-kind operation fails fast before any DDL runs.
	AllowDestructive bool
}

// ProgressFunc observes each operation after it runs. err is nil on
// success. Hosts use this for logging; a non-nil err here does not stop
// the run (see Result.Failed).
type ProgressFunc func(op schema.Operation, err error)

// OperationError pairs a failed operation with its cause.
type OperationError struct {
	Op  schema.Operation
	Err error
}

func (e OperationError) Error() string {
	return e.Op.String() + ": " + e.Err.Error()
}

// Result summarizes one Apply run. A run with failed operations is still
// useful and reportable: the applied operations stay applied.
type Result struct {
	Applied int
	Failed  []OperationError
}

// Runner applies schema operations through one dialect.
type Runner struct {
	db *sql.DB
	d  dialect.Dialect
}

// NewRunner returns a runner bound to a database handle and dialect.
func NewRunner(db *sql.DB, d dialect.Dialect) *Runner {
	return &Runner{db: db, d: d}
}

// Apply executes the plan in order. Where the engine supports
// transactional DDL the whole run shares one outer transaction; otherwise
// each statement runs in its own implicit transaction and prior
// operations are not rolled back on failure.
//
// One operation failing does not abort unrelated later operations; the
// failure is recorded in Result.Failed and reported through progress.
func (r *Runner) Apply(ctx context.Context, ops []schema.Operation, opts Options, progress ProgressFunc) (*Result, error) {
	for _, op := range ops {
		if op.Kind.Destructive() && !opts.AllowDestructive {
			return nil, &types.DestructiveError{OperationKind: string(op.Kind)}
		}
	}

	exec := execer(r.db)
	var tx *sql.Tx
	if r.d.SupportsTransactionalDDL() {
		var err error
		tx, err = r.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, &types.DatabaseError{Message: "begin migration transaction", Err: err}
		}
		defer func() { _ = tx.Rollback() }()
		exec = tx
	}

	res := &Result{}
	for _, op := range ops {
		err := r.applyOne(ctx, exec, op)
		if progress != nil {
			progress(op, err)
		}
		if err != nil {
			res.Failed = append(res.Failed, OperationError{Op: op, Err: err})
			continue
		}
		res.Applied++
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return nil, &types.DatabaseError{Message: "commit migration transaction", Err: err}
		}
	}
	return res, nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func execer(db *sql.DB) sqlExecer { return db }

func (r *Runner) applyOne(ctx context.Context, exec sqlExecer, op schema.Operation) error {
	stmts, err := r.render(op)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			if isAlreadyApplied(err) {
				continue
			}
			return &types.DatabaseError{Message: op.String(), Err: err}
		}
	}
	return nil
}

// render turns one operation into its DDL statements. CreateTable fans
// out into the table itself plus its indexes and unique constraints, so a
// single planned operation installs the complete object.
func (r *Runner) render(op schema.Operation) ([]string, error) {
	switch op.Kind {
	case schema.OpCreateTable:
		tableSQL, err := r.d.CreateTableSQL(op.Table)
		if err != nil {
			return nil, err
		}
		stmts := []string{tableSQL}
		for i := range op.Table.Indexes {
			stmts = append(stmts, r.d.CreateIndexSQL(op.Table.Name, &op.Table.Indexes[i]))
		}
		for i := range op.Table.Uniques {
			s, err := r.d.AddUniqueSQL(op.Table.Name, &op.Table.Uniques[i])
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, s)
		}
		return stmts, nil
	case schema.OpDropTable:
		return []string{r.d.DropTableSQL(op.TableName)}, nil
	case schema.OpAddColumn:
		s, err := r.d.AddColumnSQL(op.TableName, op.Column)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	case schema.OpDropColumn:
		return []string{r.d.DropColumnSQL(op.TableName, op.ColumnName)}, nil
	case schema.OpCreateIndex:
		return []string{r.d.CreateIndexSQL(op.TableName, op.Index)}, nil
	case schema.OpDropIndex:
		return []string{r.d.DropIndexSQL(op.TableName, op.IndexName)}, nil
	case schema.OpAddForeignKey:
		s, err := r.d.AddForeignKeySQL(op.TableName, op.ForeignKey)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	case schema.OpDropForeignKey:
		s, err := r.d.DropForeignKeySQL(op.TableName, op.ConstraintName)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	case schema.OpAddUniqueConstraint:
		s, err := r.d.AddUniqueSQL(op.TableName, op.Unique)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	case schema.OpDropUniqueConstraint:
		s, err := r.d.DropUniqueSQL(op.TableName, op.ConstraintName)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
}

// isAlreadyApplied detects duplicate-object errors from engines that lack
// IF NOT EXISTS on a given statement (MySQL constraint additions, older
// index syntax). Treating them as success keeps every rendered statement
// idempotent.
func isAlreadyApplied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate key name") ||
		strings.Contains(msg, "duplicate constraint") ||
		strings.Contains(msg, "duplicate column name")
}

// Migrate is the inspect-diff-apply convenience used by hosts: it reads
// the live schema, plans against desired, and applies the plan.
func Migrate(ctx context.Context, db *sql.DB, d dialect.Dialect, desired *schema.Definition, opts Options, progress ProgressFunc) (*Result, error) {
	current, err := d.Inspect(ctx, db)
	if err != nil {
		return nil, err
	}
	ops, err := schema.Diff(current, desired, opts.AllowDestructive)
	if err != nil {
		return nil, err
	}
	return NewRunner(db, d).Apply(ctx, ops, opts, progress)
}
