package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics carries the counters the replication engine records.
// Instruments come from the global meter provider, so when telemetry is
// disabled every Add is a no-op.
type SyncMetrics struct {
	Batches         metric.Int64Counter
	EntriesApplied  metric.Int64Counter
	EntriesDeferred metric.Int64Counter
	EntriesSkipped  metric.Int64Counter
	Conflicts       metric.Int64Counter
	HashMismatches  metric.Int64Counter
}

// NewSyncMetrics builds the engine's counter set. Instrument creation
// only fails for malformed names, so errors here indicate a programming
// mistake.
func NewSyncMetrics() (*SyncMetrics, error) {
	m := Meter("")
	var sm SyncMetrics
	var err error

	if sm.Batches, err = m.Int64Counter("tandem.sync.batches",
		metric.WithDescription("Batches processed across pull and push")); err != nil {
		return nil, err
	}
	if sm.EntriesApplied, err = m.Int64Counter("tandem.sync.entries_applied",
		metric.WithDescription("Log entries applied to the local database")); err != nil {
		return nil, err
	}
	if sm.EntriesDeferred, err = m.Int64Counter("tandem.sync.entries_deferred",
		metric.WithDescription("Entries deferred on foreign key violations")); err != nil {
		return nil, err
	}
	if sm.EntriesSkipped, err = m.Int64Counter("tandem.sync.entries_skipped",
		metric.WithDescription("Entries skipped by echo suppression or conflict loss")); err != nil {
		return nil, err
	}
	if sm.Conflicts, err = m.Int64Counter("tandem.sync.conflicts",
		metric.WithDescription("Row conflicts resolved")); err != nil {
		return nil, err
	}
	if sm.HashMismatches, err = m.Int64Counter("tandem.sync.hash_mismatches",
		metric.WithDescription("Batches rejected on hash verification")); err != nil {
		return nil, err
	}
	return &sm, nil
}

// The Add helpers are nil-safe so callers can carry a nil *SyncMetrics
// when telemetry is off.

func (sm *SyncMetrics) AddBatches(ctx context.Context, n int64) {
	if sm != nil && sm.Batches != nil {
		sm.Batches.Add(ctx, n)
	}
}

func (sm *SyncMetrics) AddEntriesApplied(ctx context.Context, n int64) {
	if sm != nil && sm.EntriesApplied != nil {
		sm.EntriesApplied.Add(ctx, n)
	}
}

func (sm *SyncMetrics) AddEntriesDeferred(ctx context.Context, n int64) {
	if sm != nil && sm.EntriesDeferred != nil {
		sm.EntriesDeferred.Add(ctx, n)
	}
}

func (sm *SyncMetrics) AddEntriesSkipped(ctx context.Context, n int64) {
	if sm != nil && sm.EntriesSkipped != nil {
		sm.EntriesSkipped.Add(ctx, n)
	}
}

func (sm *SyncMetrics) AddConflicts(ctx context.Context, n int64) {
	if sm != nil && sm.Conflicts != nil {
		sm.Conflicts.Add(ctx, n)
	}
}

func (sm *SyncMetrics) AddHashMismatches(ctx context.Context, n int64) {
	if sm != nil && sm.HashMismatches != nil {
		sm.HashMismatches.Add(ctx, n)
	}
}
