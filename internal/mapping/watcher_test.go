package mapping

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, remoteTable string) {
	t.Helper()
	cfg := `{"version":"1.0","mappings":[{"id":"m1","source_table":"tasks","target_table":"` + remoteTable + `"}]}`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.json")
	writeConfig(t, path, "todo_items")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	reloaded := make(chan *Engine, 1)
	w.OnReload = func(e *Engine) {
		select {
		case reloaded <- e:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if _, ok := w.Engine().bySource["tasks"]; !ok {
		t.Fatal("initial engine missing tasks mapping")
	}

	writeConfig(t, path, "renamed_items")
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload did not fire")
	}
	if _, ok := w.Engine().byTarget["renamed_items"]; !ok {
		t.Error("engine was not swapped after reload")
	}
}

func TestWatcherKeepsOldEngineOnBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.json")
	writeConfig(t, path, "todo_items")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	errs := make(chan error, 1)
	w.OnError = func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("write bad config: %v", err)
	}
	select {
	case <-errs:
	case <-time.After(5 * time.Second):
		t.Fatal("bad config did not surface an error")
	}
	if _, ok := w.Engine().byTarget["todo_items"]; !ok {
		t.Error("previous engine was discarded on bad config")
	}
}
