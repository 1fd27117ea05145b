package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	embedded "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/dialect/mysql"
	"github.com/steveyegge/tandem/internal/dialect/sqlite"
	"github.com/steveyegge/tandem/internal/types"
)

// setupWASMCache configures WASM compilation caching for the sqlite
// driver so repeated process starts skip the ~200ms JIT compile.
// Falls back to an in-memory cache when the filesystem cache cannot be
// created.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "tandem", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// Open opens a database for the named engine and returns the connection
// together with the matching dialect. Supported engines: sqlite (path
// or file: URI), mysql (go-sql-driver DSN), dolt (embedded directory
// path or dolt file:// DSN, speaks the mysql dialect).
func Open(ctx context.Context, engine, dsn string) (*sql.DB, dialect.Dialect, error) {
	switch strings.ToLower(engine) {
	case "", "sqlite", "sqlite3":
		db, err := openSQLite(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.New(), nil
	case "mysql":
		db, err := openMySQL(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, mysql.New(), nil
	case "dolt":
		db, err := openDolt(dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, mysql.New(), nil
	default:
		return nil, nil, types.InvalidArgumentf("unknown engine %q (valid values: sqlite, mysql, dolt)", engine)
	}
}

// openSQLite opens a SQLite database with the pragmas the sync engine
// needs. In-memory databases are forced to a single connection: SQLite
// isolates in-memory databases per connection, so a pool would see
// different data on every conn.
func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	var connStr string
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory")) ||
		strings.HasPrefix(path, "file::memory:")

	switch {
	case path == ":memory:":
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			connStr += sep + "_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
		}
	default:
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if isInMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus concurrent readers; cap the pool
		// so write-lock contention doesn't pile up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

func openMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, types.InvalidArgumentf("mysql engine requires a DSN")
	}
	if !strings.Contains(dsn, "parseTime=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging mysql server: %w", err)
	}
	return db, nil
}

// openDolt opens an embedded Dolt database directory. A bare path is
// turned into a file:// DSN with a default committer identity; the
// database name defaults to "tandem". Dolt embedded mode is
// single-writer like SQLite. The ping deliberately avoids the caller's
// context: the embedded driver derives a session context from the first
// Connect and a short-lived ctx would poison the pool.
func openDolt(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, types.InvalidArgumentf("dolt engine requires a directory path or file:// DSN")
	}

	if !strings.HasPrefix(dsn, "file://") {
		// Embedded DSNs must be absolute: the driver sets its internal
		// working directory from the path and relative paths get stacked.
		abs, err := filepath.Abs(dsn)
		if err != nil {
			return nil, fmt.Errorf("resolving dolt path: %w", err)
		}
		if err := os.MkdirAll(abs, 0o750); err != nil {
			return nil, fmt.Errorf("creating dolt directory: %w", err)
		}
		dsn = fmt.Sprintf("file://%s?commitname=%s&commitemail=%s&database=%s",
			abs, "tandem", "tandem@localhost", "tandem")
	}

	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dolt DSN: %w", err)
	}
	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating dolt connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging dolt database: %w", err)
	}
	return db, nil
}
