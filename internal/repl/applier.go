package repl

import (
	"context"
	"errors"
	"strings"

	"github.com/steveyegge/tandem/internal/conflict"
	"github.com/steveyegge/tandem/internal/synclog"
	"github.com/steveyegge/tandem/internal/types"
)

// PendingLookup finds this peer's own unpushed change for a row, if
// any. The applier consults it before applying a remote entry so
// concurrent edits go through conflict resolution instead of silently
// overwriting local work.
type PendingLookup func(ctx context.Context, table, pk string) (*types.LogEntry, error)

// ApplyStats counts what one batch apply did. Deferred counts distinct
// entries that hit a foreign key violation, no matter how many retry
// passes each one took.
type ApplyStats struct {
	Applied   int
	Skipped   int
	Deferred  int
	Conflicts int
}

// Applier writes incoming batches into a local store.
type Applier struct {
	store    *synclog.Store
	resolver *conflict.Resolver
	pending  PendingLookup
	passes   int
}

// NewApplier builds an applier. resolver defaults to last-write-wins
// when nil; pending may be nil when the caller knows no local edits can
// race the apply (initial bootstrap, tests).
func NewApplier(store *synclog.Store, resolver *conflict.Resolver, pending PendingLookup, cfg types.BatchConfig) *Applier {
	if resolver == nil {
		resolver = conflict.Default()
	}
	cfg = cfg.Normalize()
	return &Applier{store: store, resolver: resolver, pending: pending, passes: cfg.MaxApplyPasses}
}

// ApplyBatch applies one batch of remote entries. localOrigin is this
// peer's origin id; entries carrying it are echoes of our own changes
// and are skipped.
//
// Foreign key violations defer the entry to the end of the pass; the
// deferred set is retried in order until it stops shrinking or the pass
// budget runs out, at which point the first survivor is reported as a
// DeferredChangeFailedError. Any other apply error aborts the batch so
// the caller's watermark stays put.
func (a *Applier) ApplyBatch(ctx context.Context, b *types.Batch, localOrigin string) (*ApplyStats, error) {
	stats := &ApplyStats{}

	pending := make([]*types.LogEntry, 0, len(b.Entries))
	for i := range b.Entries {
		e := &b.Entries[i]
		if e.Origin == localOrigin {
			stats.Skipped++
			continue
		}
		keep, err := a.resolve(ctx, e, stats)
		if err != nil {
			return stats, err
		}
		if keep {
			pending = append(pending, e)
		}
	}

	deferredOnce := make(map[*types.LogEntry]bool)
	for pass := 0; pass < a.passes && len(pending) > 0; pass++ {
		var deferred []*types.LogEntry
		var firstReason string
		for _, e := range pending {
			err := a.store.ApplyEntry(ctx, e)
			switch {
			case err == nil:
				stats.Applied++
			case isForeignKeyViolation(err):
				deferred = append(deferred, e)
				if !deferredOnce[e] {
					deferredOnce[e] = true
					stats.Deferred++
				}
				if firstReason == "" {
					firstReason = err.Error()
				}
			default:
				return stats, err
			}
		}
		if len(deferred) == len(pending) {
			// No progress; further passes would repeat the same failures.
			return stats, &types.DeferredChangeFailedError{Entry: *deferred[0], Reason: firstReason}
		}
		pending = deferred
	}

	if len(pending) > 0 {
		return stats, &types.DeferredChangeFailedError{
			Entry:  *pending[0],
			Reason: "foreign key violation persisted through all retry passes",
		}
	}
	return stats, nil
}

// resolve runs conflict resolution for one incoming entry. Returns
// false when the local side won and the remote entry must be dropped.
func (a *Applier) resolve(ctx context.Context, remote *types.LogEntry, stats *ApplyStats) (bool, error) {
	if a.pending == nil {
		return true, nil
	}
	local, err := a.pending(ctx, remote.Table, remote.PKString())
	if err != nil {
		return false, err
	}
	if local == nil {
		return true, nil
	}
	res, err := a.resolver.Resolve(local, remote)
	if err != nil {
		return false, err
	}
	stats.Conflicts++
	if res.Winner == conflict.WinnerLocal {
		stats.Skipped++
		return false, nil
	}
	return true, nil
}

// isForeignKeyViolation classifies driver errors by message, covering
// SQLite ("FOREIGN KEY constraint failed") and MySQL/Dolt (error 1452,
// "a foreign key constraint fails") phrasing.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var fk *types.ForeignKeyViolationError
	if errors.As(err, &fk) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key")
}
