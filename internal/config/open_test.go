package config

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteInMemory(t *testing.T) {
	ctx := context.Background()
	db, d, err := Open(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if d.Name() != "sqlite" {
		t.Errorf("dialect = %q", d.Name())
	}
	if _, err := db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("exec on opened database: %v", err)
	}

	// Foreign keys must be on.
	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma query: %v", err)
	}
	if fk != 1 {
		t.Error("foreign_keys pragma is off")
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "t.db")
	db, _, err := Open(ctx, "sqlite", path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// File databases run in WAL mode.
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("pragma query: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpenUnknownEngine(t *testing.T) {
	if _, _, err := Open(context.Background(), "postgres", "dsn"); err == nil {
		t.Error("unknown engine accepted")
	}
}

func TestOpenMySQLRequiresDSN(t *testing.T) {
	if _, _, err := Open(context.Background(), "mysql", ""); err == nil {
		t.Error("empty mysql DSN accepted")
	}
}
