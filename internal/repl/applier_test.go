package repl

import (
	"context"
	"errors"
	"testing"

	"github.com/steveyegge/tandem/internal/conflict"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/synclog"
	"github.com/steveyegge/tandem/internal/types"
)

func remoteEntry(version int64, table, pk, payload string, op types.Operation) types.LogEntry {
	e := types.LogEntry{
		Version:   version,
		Table:     table,
		PK:        []byte(pk),
		Op:        op,
		Origin:    "remote-peer",
		Timestamp: "2026-08-24T10:00:00.000Z",
	}
	if payload != "" {
		e.Payload = []byte(payload)
	}
	return e
}

func TestApplyBatchDefersForeignKeyViolations(t *testing.T) {
	ctx := context.Background()
	store := newTestPeer(t)
	if err := store.Suppress(ctx); err != nil {
		t.Fatalf("Suppress failed: %v", err)
	}

	// Child arrives before its parent; the first pass defers it, the
	// second applies it.
	batch := &types.Batch{
		Entries: []types.LogEntry{
			remoteEntry(1, "tasks", `{"id":10}`, `{"id":10,"project_id":1,"title":"t"}`, types.OpInsert),
			remoteEntry(2, "projects", `{"id":1}`, `{"id":1,"name":"alpha"}`, types.OpInsert),
		},
		FromVersion: 0, ToVersion: 2,
	}

	a := NewApplier(store, nil, nil, types.BatchConfig{})
	stats, err := a.ApplyBatch(ctx, batch, "local-origin")
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if stats.Applied != 2 {
		t.Errorf("applied = %d, want 2", stats.Applied)
	}
	if stats.Deferred != 1 {
		t.Errorf("deferred = %d, want 1", stats.Deferred)
	}
	if got := countRows(t, store, "tasks"); got != 1 {
		t.Errorf("tasks rows = %d, want 1", got)
	}
}

// newChainPeer is newTestPeer plus a third table so deferrals can
// cascade: subtasks -> tasks -> projects.
func newChainPeer(t *testing.T) *synclog.Store {
	t.Helper()
	store := newTestPeer(t)
	if _, err := store.DB().Exec(`CREATE TABLE subtasks (id INTEGER NOT NULL, task_id INTEGER,
		PRIMARY KEY (id),
		FOREIGN KEY (task_id) REFERENCES tasks (id))`); err != nil {
		t.Fatalf("create subtasks: %v", err)
	}
	subtasks := schema.NewTable("subtasks").
		Column("id", schema.Integer(64), schema.NotNull()).
		Column("task_id", schema.Integer(64)).
		PrimaryKey("id").
		ForeignKey("task_id", "tasks", "id").
		Build()
	tables := append(testTables(), subtasks)
	if err := store.Install(context.Background(), tables); err != nil {
		t.Fatalf("install replication: %v", err)
	}
	return store
}

func TestApplyBatchCountsDeferralsOnce(t *testing.T) {
	ctx := context.Background()
	store := newChainPeer(t)
	if err := store.Suppress(ctx); err != nil {
		t.Fatalf("Suppress failed: %v", err)
	}

	// Grandchild first, then child, then parent: the subtask defers on
	// two passes before its chain resolves, but still counts as one
	// deferred change.
	batch := &types.Batch{
		Entries: []types.LogEntry{
			remoteEntry(1, "subtasks", `{"id":100}`, `{"id":100,"task_id":10}`, types.OpInsert),
			remoteEntry(2, "tasks", `{"id":10}`, `{"id":10,"project_id":1,"title":"t"}`, types.OpInsert),
			remoteEntry(3, "projects", `{"id":1}`, `{"id":1,"name":"alpha"}`, types.OpInsert),
		},
		FromVersion: 0, ToVersion: 3,
	}

	a := NewApplier(store, nil, nil, types.BatchConfig{})
	stats, err := a.ApplyBatch(ctx, batch, "local-origin")
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if stats.Applied != 3 {
		t.Errorf("applied = %d, want 3", stats.Applied)
	}
	if stats.Deferred != 2 {
		t.Errorf("deferred = %d, want 2 distinct entries", stats.Deferred)
	}
	if got := countRows(t, store, "subtasks"); got != 1 {
		t.Errorf("subtasks rows = %d, want 1", got)
	}
}

func TestApplyBatchReportsUnresolvableDeferral(t *testing.T) {
	ctx := context.Background()
	store := newTestPeer(t)
	if err := store.Suppress(ctx); err != nil {
		t.Fatalf("Suppress failed: %v", err)
	}

	// The parent never arrives; the pass budget runs out.
	batch := &types.Batch{
		Entries: []types.LogEntry{
			remoteEntry(1, "tasks", `{"id":10}`, `{"id":10,"project_id":99,"title":"orphan"}`, types.OpInsert),
		},
		FromVersion: 0, ToVersion: 1,
	}

	a := NewApplier(store, nil, nil, types.BatchConfig{})
	_, err := a.ApplyBatch(ctx, batch, "local-origin")
	var deferred *types.DeferredChangeFailedError
	if !errors.As(err, &deferred) {
		t.Fatalf("expected DeferredChangeFailedError, got %v", err)
	}
	if deferred.Entry.Version != 1 {
		t.Errorf("error names entry v%d, want v1", deferred.Entry.Version)
	}
	if got := countRows(t, store, "tasks"); got != 0 {
		t.Errorf("orphan row was applied anyway (%d rows)", got)
	}
}

func TestApplyBatchEchoSuppression(t *testing.T) {
	ctx := context.Background()
	store := newTestPeer(t)

	batch := &types.Batch{
		Entries: []types.LogEntry{
			remoteEntry(1, "projects", `{"id":1}`, `{"id":1,"name":"mine"}`, types.OpInsert),
		},
	}
	batch.Entries[0].Origin = "local-origin"

	a := NewApplier(store, nil, nil, types.BatchConfig{})
	stats, err := a.ApplyBatch(ctx, batch, "local-origin")
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if stats.Skipped != 1 || stats.Applied != 0 {
		t.Errorf("stats = %+v, want 1 skipped and 0 applied", stats)
	}
	if got := countRows(t, store, "projects"); got != 0 {
		t.Errorf("echoed entry was applied (%d rows)", got)
	}
}

func TestApplyBatchConflictLocalWins(t *testing.T) {
	ctx := context.Background()
	store := newTestPeer(t)
	mustExec(t, store, "INSERT INTO projects (id, name) VALUES (1, 'local edit')")

	// The local pending edit is newer than the incoming one.
	localPending := types.LogEntry{
		Version: 5, Table: "projects", PK: []byte(`{"id":1}`),
		Op: types.OpUpdate, Origin: "local-origin",
		Timestamp: "2026-08-24T12:00:00.000Z",
	}
	pending := func(ctx context.Context, table, pk string) (*types.LogEntry, error) {
		if table == "projects" && pk == localPending.PKString() {
			return &localPending, nil
		}
		return nil, nil
	}

	batch := &types.Batch{
		Entries: []types.LogEntry{
			remoteEntry(9, "projects", `{"id":1}`, `{"id":1,"name":"remote edit"}`, types.OpUpdate),
		},
	}

	a := NewApplier(store, conflict.Default(), pending, types.BatchConfig{})
	stats, err := a.ApplyBatch(ctx, batch, "local-origin")
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if stats.Conflicts != 1 || stats.Skipped != 1 || stats.Applied != 0 {
		t.Errorf("stats = %+v, want conflict resolved in local favor", stats)
	}

	var name string
	if err := store.DB().QueryRow("SELECT name FROM projects WHERE id = 1").Scan(&name); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if name != "local edit" {
		t.Errorf("local edit was overwritten, name = %q", name)
	}
}

func TestApplyBatchConflictRemoteWins(t *testing.T) {
	ctx := context.Background()
	store := newTestPeer(t)
	mustExec(t, store, "INSERT INTO projects (id, name) VALUES (1, 'local edit')")
	if err := store.Suppress(ctx); err != nil {
		t.Fatalf("Suppress failed: %v", err)
	}

	localPending := types.LogEntry{
		Version: 5, Table: "projects", PK: []byte(`{"id":1}`),
		Op: types.OpUpdate, Origin: "local-origin",
		Timestamp: "2026-08-24T09:00:00.000Z",
	}
	pending := func(ctx context.Context, table, pk string) (*types.LogEntry, error) {
		return &localPending, nil
	}

	batch := &types.Batch{
		Entries: []types.LogEntry{
			remoteEntry(9, "projects", `{"id":1}`, `{"id":1,"name":"remote edit"}`, types.OpUpdate),
		},
	}

	a := NewApplier(store, conflict.Default(), pending, types.BatchConfig{})
	stats, err := a.ApplyBatch(ctx, batch, "local-origin")
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if stats.Conflicts != 1 || stats.Applied != 1 {
		t.Errorf("stats = %+v, want conflict resolved in remote favor", stats)
	}

	var name string
	if err := store.DB().QueryRow("SELECT name FROM projects WHERE id = 1").Scan(&name); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if name != "remote edit" {
		t.Errorf("remote win not applied, name = %q", name)
	}
}

func TestApplyBatchAbortsOnHardError(t *testing.T) {
	ctx := context.Background()
	store := newTestPeer(t)
	if err := store.Suppress(ctx); err != nil {
		t.Fatalf("Suppress failed: %v", err)
	}

	batch := &types.Batch{
		Entries: []types.LogEntry{
			remoteEntry(1, "projects", `{"id":1}`, `{"id":1,"name":"ok"}`, types.OpInsert),
			remoteEntry(2, "nonexistent", `{"id":1}`, `{"id":1}`, types.OpInsert),
			remoteEntry(3, "projects", `{"id":2}`, `{"id":2,"name":"never"}`, types.OpInsert),
		},
	}

	a := NewApplier(store, nil, nil, types.BatchConfig{})
	_, err := a.ApplyBatch(ctx, batch, "local-origin")
	if err == nil {
		t.Fatal("expected error for unregistered table")
	}
	// The failing entry aborted the batch before entry 3.
	if got := countRows(t, store, "projects"); got != 1 {
		t.Errorf("projects rows = %d, want 1 (batch aborted mid-way)", got)
	}
}
