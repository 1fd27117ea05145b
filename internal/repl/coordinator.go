package repl

import (
	"context"

	"github.com/steveyegge/tandem/internal/conflict"
	"github.com/steveyegge/tandem/internal/hashing"
	"github.com/steveyegge/tandem/internal/synclog"
	"github.com/steveyegge/tandem/internal/telemetry"
	"github.com/steveyegge/tandem/internal/tracker"
	"github.com/steveyegge/tandem/internal/types"
)

// MapFunc rewrites a slice of entries crossing a peer boundary. Used by
// the mapping layer to rename tables and columns and to filter rows; a
// nil MapFunc passes entries through unchanged. Returning a shorter
// slice drops entries.
type MapFunc func(entries []types.LogEntry) ([]types.LogEntry, error)

// Coordinator runs pull, push, and full sync passes between a local
// store and a remote one. Remote operations retry transient connection
// errors; local operations do not.
type Coordinator struct {
	Local  *synclog.Store
	Remote *synclog.Store

	// Resolver decides row conflicts; nil means last-write-wins.
	Resolver *conflict.Resolver
	// Pending locates local unpushed edits for conflict detection.
	Pending PendingLookup
	Config  types.BatchConfig
	// Metrics may be nil; all recording is nil-safe.
	Metrics *telemetry.SyncMetrics

	// PullMap and PushMap are the mapping hooks for each direction.
	PullMap MapFunc
	PushMap MapFunc
}

// Pull fetches remote changes past the local pull watermark and applies
// them batch by batch. The watermark advances only after a batch is
// fully applied, so a failed batch is re-fetched whole on the next
// pass; idempotent upserts make the re-apply safe.
func (c *Coordinator) Pull(ctx context.Context) (*types.PullResult, error) {
	origin, err := c.Local.OriginID(ctx)
	if err != nil {
		return nil, err
	}
	from, err := c.Local.LastServerVersion(ctx)
	if err != nil {
		return nil, err
	}
	result := &types.PullResult{FromVersion: from, ToVersion: from}

	// A watermark below the remote's retention floor cannot be served
	// incrementally.
	var oldest int64
	if err := withRemoteRetry(ctx, func() error {
		var err error
		oldest, err = c.Remote.OldestVersion(ctx)
		return err
	}); err != nil {
		return result, err
	}
	if err := tracker.CheckResyncRequired(from, oldest); err != nil {
		return result, err
	}

	applier := NewApplier(c.Local, c.Resolver, c.Pending, c.Config)
	for {
		var batch *types.Batch
		if err := withRemoteRetry(ctx, func() error {
			var err error
			batch, err = FetchBatch(ctx, c.Remote, from, c.Config)
			return err
		}); err != nil {
			return result, err
		}
		c.Metrics.AddBatches(ctx, 1)

		if err := hashing.VerifyBatch(batch); err != nil {
			c.Metrics.AddHashMismatches(ctx, 1)
			return result, err
		}
		if c.PullMap != nil {
			batch.Entries, err = c.PullMap(batch.Entries)
			if err != nil {
				return result, err
			}
		}

		stats, err := c.applySuppressed(ctx, applier, batch, origin)
		if stats != nil {
			result.ChangesApplied += stats.Applied
			c.recordApply(ctx, stats)
		}
		if err != nil {
			return result, err
		}

		if err := c.Local.SetLastServerVersion(ctx, batch.ToVersion); err != nil {
			return result, err
		}
		if err := withRemoteRetry(ctx, func() error {
			return c.Remote.UpsertClient(ctx, origin, batch.ToVersion)
		}); err != nil {
			return result, err
		}

		from = batch.ToVersion
		result.ToVersion = batch.ToVersion
		if !batch.HasMore {
			return result, nil
		}
	}
}

// applySuppressed applies one batch under capture suppression so the
// replay does not echo back into the local log.
func (c *Coordinator) applySuppressed(ctx context.Context, a *Applier, b *types.Batch, origin string) (*ApplyStats, error) {
	if err := c.Local.Suppress(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = c.Local.Unsuppress(context.Background()) }()
	return a.ApplyBatch(ctx, b, origin)
}

// Push sends local changes past the push watermark to the remote,
// writing them into remote user tables and appending them to the remote
// log (origin and timestamp preserved) so other peers can pull them.
func (c *Coordinator) Push(ctx context.Context) (*types.PushResult, error) {
	from, err := c.Local.LastPushVersion(ctx)
	if err != nil {
		return nil, err
	}
	var remoteOrigin string
	if err := withRemoteRetry(ctx, func() error {
		var err error
		remoteOrigin, err = c.Remote.OriginID(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	result := &types.PushResult{FromVersion: from, ToVersion: from}

	for {
		batch, err := FetchBatch(ctx, c.Local, from, c.Config)
		if err != nil {
			return result, err
		}
		c.Metrics.AddBatches(ctx, 1)

		if c.PushMap != nil {
			batch.Entries, err = c.PushMap(batch.Entries)
			if err != nil {
				return result, err
			}
		}

		sent, err := c.sendBatch(ctx, batch, remoteOrigin)
		result.ChangesSent += sent
		if err != nil {
			return result, err
		}

		if err := c.Local.SetLastPushVersion(ctx, batch.ToVersion); err != nil {
			return result, err
		}
		from = batch.ToVersion
		result.ToVersion = batch.ToVersion
		if !batch.HasMore {
			return result, nil
		}
	}
}

// sendBatch applies one outgoing batch on the remote under suppression.
// Entries that originated at the remote are echoes and are skipped.
func (c *Coordinator) sendBatch(ctx context.Context, b *types.Batch, remoteOrigin string) (int, error) {
	sent := 0
	err := withRemoteRetry(ctx, func() error {
		if err := c.Remote.Suppress(ctx); err != nil {
			return err
		}
		defer func() { _ = c.Remote.Unsuppress(context.Background()) }()

		for i := sent; i < len(b.Entries); i++ {
			e := &b.Entries[i]
			if e.Origin == remoteOrigin {
				sent++
				continue
			}
			if err := c.Remote.ApplyEntry(ctx, e); err != nil {
				return err
			}
			if _, err := c.Remote.Append(ctx, e); err != nil {
				return err
			}
			sent++
			c.Metrics.AddEntriesApplied(ctx, 1)
		}
		return nil
	})
	return sent, err
}

// Sync runs a pull followed by a push. A failed pull skips the push:
// pushing on top of an unknown remote state would reorder conflicting
// edits.
func (c *Coordinator) Sync(ctx context.Context) (*types.SyncResult, error) {
	result := &types.SyncResult{}
	pull, err := c.Pull(ctx)
	if pull != nil {
		result.Pull = *pull
	}
	if err != nil {
		return result, err
	}
	push, err := c.Push(ctx)
	if push != nil {
		result.Push = *push
	}
	return result, err
}

// PurgeSafe deletes log entries every registered peer has consumed,
// returning the number of rows removed. With no registered peers
// nothing is purged.
func PurgeSafe(ctx context.Context, s *synclog.Store) (int64, error) {
	clients, err := s.Clients(ctx)
	if err != nil {
		return 0, err
	}
	v := tracker.SafePurgeVersion(clients)
	if v == 0 {
		return 0, nil
	}
	return s.PurgeThrough(ctx, v)
}

func (c *Coordinator) recordApply(ctx context.Context, stats *ApplyStats) {
	c.Metrics.AddEntriesApplied(ctx, int64(stats.Applied))
	c.Metrics.AddEntriesDeferred(ctx, int64(stats.Deferred))
	c.Metrics.AddEntriesSkipped(ctx, int64(stats.Skipped))
	c.Metrics.AddConflicts(ctx, int64(stats.Conflicts))
}
