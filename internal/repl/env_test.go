package repl

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/tandem/internal/dialect/sqlite"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/synclog"
)

// testTables is a parent/child pair so foreign key deferral paths get
// exercised.
func testTables() []schema.Table {
	projects := schema.NewTable("projects").
		Column("id", schema.Integer(64), schema.NotNull()).
		Column("name", schema.VarChar(100)).
		PrimaryKey("id").
		Build()
	tasks := schema.NewTable("tasks").
		Column("id", schema.Integer(64), schema.NotNull()).
		Column("project_id", schema.Integer(64)).
		Column("title", schema.VarChar(200)).
		PrimaryKey("id").
		ForeignKey("project_id", "projects", "id").
		Build()
	return []schema.Table{projects, tasks}
}

// newTestPeer opens an isolated in-memory database, creates the user
// tables, and installs replication on them.
func newTestPeer(t *testing.T) *synclog.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	// In-memory databases are per-connection; keep the pool at one so
	// every statement sees the same database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ddl := []string{
		`CREATE TABLE projects (id INTEGER NOT NULL, name TEXT, PRIMARY KEY (id))`,
		`CREATE TABLE tasks (id INTEGER NOT NULL, project_id INTEGER, title TEXT,
			PRIMARY KEY (id),
			FOREIGN KEY (project_id) REFERENCES projects (id))`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create test tables: %v", err)
		}
	}

	store := synclog.NewStore(db, sqlite.New())
	if err := store.Install(context.Background(), testTables()); err != nil {
		t.Fatalf("install replication: %v", err)
	}
	return store
}

func newTestPair(t *testing.T) (local, remote *synclog.Store, c *Coordinator) {
	t.Helper()
	local = newTestPeer(t)
	remote = newTestPeer(t)
	c = &Coordinator{Local: local, Remote: remote}
	return local, remote, c
}

func mustExec(t *testing.T, s *synclog.Store, query string, args ...interface{}) {
	t.Helper()
	if _, err := s.DB().Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func countRows(t *testing.T, s *synclog.Store, table string) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
