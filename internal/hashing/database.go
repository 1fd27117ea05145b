package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"golang.org/x/sync/errgroup"
)

// RowFetcher returns one table's rows in primary-key order, each row as a
// column-name → value map.
type RowFetcher func(ctx context.Context, table string) ([]map[string]interface{}, error)

// fetchConcurrency bounds parallel table reads during a database hash.
const fetchConcurrency = 4

// ComputeDatabaseHash folds every table's canonical rows into one
// SHA-256. Tables are processed in alphabetical order so two peers agree
// regardless of how the caller listed them; rows are fetched concurrently
// but folded strictly in order.
func ComputeDatabaseHash(ctx context.Context, tables []string, fetch RowFetcher) (string, error) {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)

	rowsByTable := make([][]map[string]interface{}, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, table := range sorted {
		g.Go(func() error {
			rows, err := fetch(gctx, table)
			if err != nil {
				return err
			}
			rowsByTable[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	h := sha256.New()
	for i, table := range sorted {
		h.Write([]byte(table))
		for _, row := range rowsByTable[i] {
			canon, err := CanonicalizeMap(row)
			if err != nil {
				return "", err
			}
			h.Write([]byte(canon))
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeTableHash hashes a single table's rows; used by the CLI to
// compare one table across peers.
func ComputeTableHash(ctx context.Context, table string, fetch RowFetcher) (string, error) {
	return ComputeDatabaseHash(ctx, []string{table}, fetch)
}
