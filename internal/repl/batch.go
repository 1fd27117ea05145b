// Package repl drives replication between two peers: paging the change
// log into batches, applying batches with conflict resolution and
// deferred retry, and coordinating full pull/push/sync passes.
package repl

import (
	"context"

	"github.com/steveyegge/tandem/internal/hashing"
	"github.com/steveyegge/tandem/internal/synclog"
	"github.com/steveyegge/tandem/internal/types"
)

// FetchBatch pages one batch of changes past fromVersion out of a
// store's log. ToVersion is the last entry's version, or fromVersion
// for an empty batch, so callers can always advance their watermark to
// ToVersion after a successful apply.
func FetchBatch(ctx context.Context, s *synclog.Store, fromVersion int64, cfg types.BatchConfig) (*types.Batch, error) {
	cfg = cfg.Normalize()
	entries, hasMore, err := s.FetchSince(ctx, fromVersion, cfg.Size)
	if err != nil {
		return nil, err
	}
	b := &types.Batch{
		Entries:     entries,
		FromVersion: fromVersion,
		ToVersion:   fromVersion,
		HasMore:     hasMore,
	}
	if n := len(entries); n > 0 {
		b.ToVersion = entries[n-1].Version
	}
	if cfg.WithHash && len(entries) > 0 {
		h, err := hashing.ComputeBatchHash(entries)
		if err != nil {
			return nil, err
		}
		b.Hash = h
	}
	return b, nil
}
