package mapping

import (
	"encoding/json"
	"testing"

	"github.com/steveyegge/tandem/internal/types"
)

const baseConfig = `{
  "version": "1.0",
  "mappings": [
    {
      "id": "tasks-to-todo",
      "source_table": "tasks",
      "target_table": "todo_items",
      "direction": "both",
      "pk_mapping": {"source_column": "id", "target_column": "item_id"},
      "column_mappings": [
        {"source": "title", "target": "summary"},
        {"target": "source", "transform": "constant", "value": "tandem"},
        {"source": "assignee", "target": "owner", "transform": "lql",
         "lql": "assignee |> trim() |> lower()"}
      ],
      "excluded_columns": ["internal_notes"]
    }
  ]
}`

func newTestEngine(t *testing.T, cfgJSON string) *Engine {
	t.Helper()
	cfg, err := Parse([]byte(cfgJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func pushOne(t *testing.T, e *Engine, entry types.LogEntry) types.LogEntry {
	t.Helper()
	out, err := e.MapPush([]types.LogEntry{entry})
	if err != nil {
		t.Fatalf("MapPush failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("MapPush returned %d entries, want 1", len(out))
	}
	return out[0]
}

func payloadMap(t *testing.T, e *types.LogEntry) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		t.Fatalf("bad payload %s: %v", e.Payload, err)
	}
	return m
}

func TestPushRenamesTableAndColumns(t *testing.T) {
	e := newTestEngine(t, baseConfig)
	entry := types.LogEntry{
		Version: 1, Table: "tasks", PK: []byte(`{"id":7}`),
		Op: types.OpInsert,
		Payload: []byte(`{"id":7,"title":"Ship it","assignee":"  Ada  ",
			"internal_notes":"secret","status":"open"}`),
		Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
	}

	got := pushOne(t, e, entry)
	if got.Table != "todo_items" {
		t.Errorf("table = %q, want todo_items", got.Table)
	}
	if string(got.PK) != `{"item_id":7}` {
		t.Errorf("pk = %s", got.PK)
	}

	p := payloadMap(t, &got)
	if p["summary"] != "Ship it" {
		t.Errorf("summary = %v", p["summary"])
	}
	if p["source"] != "tandem" {
		t.Errorf("constant column = %v", p["source"])
	}
	if p["owner"] != "ada" {
		t.Errorf("lql column = %v", p["owner"])
	}
	if _, leaked := p["internal_notes"]; leaked {
		t.Error("excluded column leaked into payload")
	}
	if p["status"] != "open" {
		t.Errorf("unmapped column should pass through, got %v", p["status"])
	}
	if p["item_id"] != float64(7) {
		t.Errorf("pk rename missing from payload: %v", p["item_id"])
	}
	if _, stale := p["title"]; stale {
		t.Error("renamed column kept its source name")
	}
}

func TestPushDeletePassthrough(t *testing.T) {
	e := newTestEngine(t, baseConfig)
	entry := types.LogEntry{
		Version: 2, Table: "tasks", PK: []byte(`{"id":7}`),
		Op: types.OpDelete, Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
	}
	got := pushOne(t, e, entry)
	if got.Table != "todo_items" || string(got.PK) != `{"item_id":7}` {
		t.Errorf("delete mapped to %s %s", got.Table, got.PK)
	}
	if got.Payload != nil {
		t.Errorf("delete grew a payload: %s", got.Payload)
	}
}

func TestPullReversesRenames(t *testing.T) {
	e := newTestEngine(t, baseConfig)
	entry := types.LogEntry{
		Version: 3, Table: "todo_items", PK: []byte(`{"item_id":7}`),
		Op:      types.OpUpdate,
		Payload: []byte(`{"item_id":7,"summary":"Ship it","source":"tandem","owner":"ada","status":"open"}`),
		Origin:  "b", Timestamp: "2026-08-24T11:00:00.000Z",
	}
	out, err := e.MapPull([]types.LogEntry{entry})
	if err != nil {
		t.Fatalf("MapPull failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d entries", len(out))
	}
	got := out[0]
	if got.Table != "tasks" {
		t.Errorf("table = %q, want tasks", got.Table)
	}
	if string(got.PK) != `{"id":7}` {
		t.Errorf("pk = %s", got.PK)
	}
	p := payloadMap(t, &got)
	if p["title"] != "Ship it" {
		t.Errorf("title = %v", p["title"])
	}
	// Constant and expression columns cannot be inverted.
	if _, ok := p["source"]; ok {
		t.Error("constant column survived the pull rewrite")
	}
	if _, ok := p["owner"]; ok {
		t.Error("lql column survived the pull rewrite")
	}
	if p["status"] != "open" {
		t.Errorf("passthrough column lost: %v", p["status"])
	}
}

func TestUnmappedTableBehavior(t *testing.T) {
	e := newTestEngine(t, baseConfig)
	entry := types.LogEntry{
		Version: 1, Table: "audit_log", PK: []byte(`{"id":1}`),
		Op: types.OpInsert, Payload: []byte(`{"id":1}`),
		Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
	}

	// Default is passthrough.
	out, err := e.MapPush([]types.LogEntry{entry})
	if err != nil || len(out) != 1 || out[0].Table != "audit_log" {
		t.Fatalf("passthrough: out=%v err=%v", out, err)
	}

	strict := newTestEngine(t, `{
	  "version": "1.0",
	  "unmapped_table_behavior": "strict",
	  "mappings": [
	    {"id": "m1", "source_table": "tasks", "target_table": "todo_items"}
	  ]
	}`)
	if _, err := strict.MapPush([]types.LogEntry{entry}); err == nil {
		t.Error("strict mode accepted an unmapped table")
	}
}

func TestDisabledMappingActsUnmapped(t *testing.T) {
	e := newTestEngine(t, `{
	  "version": "1.0",
	  "mappings": [
	    {"id": "m1", "source_table": "tasks", "target_table": "todo_items", "enabled": false}
	  ]
	}`)
	entry := types.LogEntry{
		Version: 1, Table: "tasks", PK: []byte(`{"id":1}`),
		Op: types.OpInsert, Payload: []byte(`{"id":1}`),
		Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
	}
	out, err := e.MapPush([]types.LogEntry{entry})
	if err != nil {
		t.Fatalf("MapPush failed: %v", err)
	}
	if len(out) != 1 || out[0].Table != "tasks" {
		t.Errorf("disabled mapping should pass through unchanged, got %v", out)
	}
}

func TestDirectionFiltering(t *testing.T) {
	e := newTestEngine(t, `{
	  "version": "1.0",
	  "mappings": [
	    {"id": "m1", "source_table": "tasks", "target_table": "todo_items", "direction": "pull"}
	  ]
	}`)
	entry := types.LogEntry{
		Version: 1, Table: "tasks", PK: []byte(`{"id":1}`),
		Op: types.OpInsert, Payload: []byte(`{"id":1}`),
		Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
	}
	out, err := e.MapPush([]types.LogEntry{entry})
	if err != nil {
		t.Fatalf("MapPush failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("pull-only mapping pushed %d entries", len(out))
	}
}

func TestRowFilter(t *testing.T) {
	e := newTestEngine(t, `{
	  "version": "1.0",
	  "mappings": [
	    {"id": "m1", "source_table": "tasks", "target_table": "todo_items",
	     "filter": {"lql": "is_public"}}
	  ]
	}`)
	mk := func(payload string) types.LogEntry {
		return types.LogEntry{
			Version: 1, Table: "tasks", PK: []byte(`{"id":1}`),
			Op: types.OpInsert, Payload: []byte(payload),
			Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
		}
	}
	out, err := e.MapPush([]types.LogEntry{mk(`{"id":1,"is_public":"1"}`), mk(`{"id":2,"is_public":"0"}`)})
	if err != nil {
		t.Fatalf("MapPush failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("filter kept %d entries, want 1", len(out))
	}
}

func TestMultiTargetFanOut(t *testing.T) {
	e := newTestEngine(t, `{
	  "version": "1.0",
	  "mappings": [
	    {
	      "id": "m1",
	      "source_table": "tasks",
	      "direction": "push",
	      "multi_target": true,
	      "targets": [
	        {"table": "todo_items"},
	        {"table": "task_archive"}
	      ]
	    }
	  ]
	}`)
	entry := types.LogEntry{
		Version: 1, Table: "tasks", PK: []byte(`{"id":1}`),
		Op: types.OpInsert, Payload: []byte(`{"id":1,"title":"x"}`),
		Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
	}
	out, err := e.MapPush([]types.LogEntry{entry})
	if err != nil {
		t.Fatalf("MapPush failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("fan-out produced %d entries, want 2", len(out))
	}
	if out[0].Table != "todo_items" || out[1].Table != "task_archive" {
		t.Errorf("targets = %q, %q", out[0].Table, out[1].Table)
	}
}

func TestSyncTrackingStampsVersion(t *testing.T) {
	e := newTestEngine(t, `{
	  "version": "1.0",
	  "mappings": [
	    {"id": "m1", "source_table": "tasks", "target_table": "todo_items",
	     "sync_tracking": {"enabled": true, "tracking_column": "synced_version", "strategy": "version"}}
	  ]
	}`)
	entry := types.LogEntry{
		Version: 42, Table: "tasks", PK: []byte(`{"id":1}`),
		Op: types.OpInsert, Payload: []byte(`{"id":1,"title":"x"}`),
		Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
	}
	got := pushOne(t, e, entry)
	p := payloadMap(t, &got)
	if p["synced_version"] != float64(42) {
		t.Errorf("tracking column = %v, want 42", p["synced_version"])
	}

	// The stamp is bookkeeping on the far side; pulling drops it.
	back := types.LogEntry{
		Version: 1, Table: "todo_items", PK: []byte(`{"id":1}`),
		Op: types.OpUpdate, Payload: []byte(`{"id":1,"title":"x","synced_version":42}`),
		Origin: "b", Timestamp: "2026-08-24T11:00:00.000Z",
	}
	out, err := e.MapPull([]types.LogEntry{back})
	if err != nil {
		t.Fatalf("MapPull failed: %v", err)
	}
	if _, ok := payloadMap(t, &out[0])["synced_version"]; ok {
		t.Error("tracking column survived the pull rewrite")
	}
}

func TestSyncTrackingHashStrategy(t *testing.T) {
	e := newTestEngine(t, `{
	  "version": "1.0",
	  "mappings": [
	    {"id": "m1", "source_table": "tasks", "target_table": "todo_items",
	     "sync_tracking": {"enabled": true, "tracking_column": "row_hash", "strategy": "hash"}}
	  ]
	}`)
	entry := types.LogEntry{
		Version: 1, Table: "tasks", PK: []byte(`{"id":1}`),
		Op: types.OpInsert, Payload: []byte(`{"id":1,"title":"x"}`),
		Origin: "a", Timestamp: "2026-08-24T10:00:00.000Z",
	}
	p1 := payloadMap(t, ptr(pushOne(t, e, entry)))
	h1, ok := p1["row_hash"].(string)
	if !ok || len(h1) != 64 {
		t.Fatalf("row_hash = %v, want 64-char hex digest", p1["row_hash"])
	}

	// Same payload hashes the same; a different one does not.
	p2 := payloadMap(t, ptr(pushOne(t, e, entry)))
	if p2["row_hash"] != h1 {
		t.Errorf("hash is not deterministic: %v vs %v", p2["row_hash"], h1)
	}
	entry.Payload = []byte(`{"id":1,"title":"y"}`)
	p3 := payloadMap(t, ptr(pushOne(t, e, entry)))
	if p3["row_hash"] == h1 {
		t.Error("different payloads produced the same hash")
	}
}

func ptr(e types.LogEntry) *types.LogEntry { return &e }
