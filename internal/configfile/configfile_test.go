package configfile

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingReturnsNil(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != nil {
		t.Errorf("missing metadata loaded as %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := &Config{Database: "custom.db", Engine: "sqlite", MappingFile: "mapping.json"}
	if err := want.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil || *got != *want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestDatabasePathResolution(t *testing.T) {
	dir := t.TempDir()

	rel := &Config{Database: "tandem.db", Engine: "sqlite"}
	if got, want := rel.DatabasePath(dir), filepath.Join(dir, "tandem.db"); got != want {
		t.Errorf("relative path = %q, want %q", got, want)
	}

	abs := &Config{Database: filepath.Join(dir, "elsewhere.db"), Engine: "sqlite"}
	if got := abs.DatabasePath(dir); got != abs.Database {
		t.Errorf("absolute path rewritten to %q", got)
	}

	// Server DSNs are not filesystem paths.
	srv := &Config{Database: "user@tcp(host:3306)/db", Engine: "mysql"}
	if got := srv.DatabasePath(dir); got != srv.Database {
		t.Errorf("mysql DSN rewritten to %q", got)
	}
}

func TestMappingPath(t *testing.T) {
	dir := t.TempDir()
	none := DefaultConfig()
	if got := none.MappingPath(dir); got != "" {
		t.Errorf("unset mapping resolved to %q", got)
	}

	cfg := &Config{Database: "tandem.db", MappingFile: "mapping.json"}
	if got, want := cfg.MappingPath(dir), filepath.Join(dir, "mapping.json"); got != want {
		t.Errorf("mapping path = %q, want %q", got, want)
	}
}
