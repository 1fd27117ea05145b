package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/steveyegge/tandem/internal/hashing"
	"github.com/steveyegge/tandem/internal/lockfile"
	"github.com/steveyegge/tandem/internal/synclog"
	"github.com/steveyegge/tandem/internal/types"
)

var hashCmd = &cobra.Command{
	Use:     "hash [table]",
	GroupID: "setup",
	Short:   "Print the integrity hash of the database or one table",
	Long: `Compute the SHA-256 integrity hash over all tracked tables, or over a
single named table. Two peers with identical data produce identical
hashes regardless of engine or row order, so comparing hashes verifies
convergence after a sync.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		env, err := openEnv(ctx)
		if err != nil {
			FatalError("%v", err)
		}
		defer env.Close()

		// Shared lock: hashing mid-sync would see a torn state.
		lock, err := lockfile.AcquireShared(env.projectDir)
		if err != nil {
			FatalError("failed to acquire read lock: %v", err)
		}
		defer func() { _ = lock.Release() }()

		fetch := storeRowFetcher(env.local)

		var hash string
		var scope string
		if len(args) == 1 {
			scope = args[0]
			if _, ok := env.local.Table(scope); !ok {
				FatalError("table %q is not tracked", scope)
			}
			hash, err = hashing.ComputeTableHash(ctx, scope, fetch)
		} else {
			scope = "database"
			tables := env.local.Tables()
			if len(tables) == 0 {
				FatalErrorWithHint("no tracked tables",
					"Add .tandem/schema.json and run 'tandem migrate' to start tracking tables")
			}
			hash, err = hashing.ComputeDatabaseHash(ctx, tables, fetch)
		}
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]string{"scope": scope, "hash": hash})
			return
		}
		fmt.Println(hash)
	},
}

// storeRowFetcher reads every row of a table into the generic map form
// the hasher canonicalizes, ordered by primary key so two peers fold
// rows identically. Byte slices become strings so []byte and TEXT
// columns hash identically across drivers.
func storeRowFetcher(s *synclog.Store) hashing.RowFetcher {
	db, d := s.DB(), s.Dialect()
	return func(ctx context.Context, table string) ([]map[string]interface{}, error) {
		query := "SELECT * FROM " + d.QuoteIdent(table)
		if t, ok := s.Table(table); ok && len(t.PrimaryKey) > 0 {
			cols := make([]string, len(t.PrimaryKey))
			for i, c := range t.PrimaryKey {
				cols[i] = d.QuoteIdent(c)
			}
			query += " ORDER BY " + strings.Join(cols, ", ")
		}
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return nil, &types.DatabaseError{Message: "read rows from " + table, Err: err}
		}
		defer func() { _ = rows.Close() }()

		cols, err := rows.Columns()
		if err != nil {
			return nil, &types.DatabaseError{Message: "read columns of " + table, Err: err}
		}

		var out []map[string]interface{}
		for rows.Next() {
			vals := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, &types.DatabaseError{Message: "scan row from " + table, Err: err}
			}
			row := make(map[string]interface{}, len(cols))
			for i, col := range cols {
				if b, ok := vals[i].([]byte); ok {
					row[col] = string(b)
				} else {
					row[col] = vals[i]
				}
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return nil, &types.DatabaseError{Message: "read rows from " + table, Err: err}
		}
		return out, nil
	}
}

func init() {
	rootCmd.AddCommand(hashCmd)
}
