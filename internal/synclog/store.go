// Package synclog owns the replication metadata tables (_sync_log,
// _sync_state, _sync_session, _sync_clients, _sync_subscriptions), the
// change-capture trigger installation, and the apply path that writes
// replicated entries into user tables.
package synclog

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/schema"
	"github.com/steveyegge/tandem/internal/types"
)

// Store wraps one peer's database handle with replication metadata
// operations. The handle is exclusively owned by the caller; Store adds
// no locking of its own beyond transactions.
type Store struct {
	db *sql.DB
	d  dialect.Dialect

	// tables replicated through this store, kept for the apply path to
	// resolve primary key columns. Populated by Install or SetTables.
	tables map[string]*schema.Table
}

// NewStore binds a store to a database handle and dialect.
func NewStore(db *sql.DB, d dialect.Dialect) *Store {
	return &Store{db: db, d: d, tables: map[string]*schema.Table{}}
}

// DB exposes the underlying handle for hosts that need raw access
// (hashing row fetchers, ad-hoc queries).
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the engine dialect this store renders through.
func (s *Store) Dialect() dialect.Dialect { return s.d }

// SetTables registers replicated table definitions without reinstalling
// anything. Used when the schema was installed by another peer sharing
// the backing store.
func (s *Store) SetTables(tables []schema.Table) {
	for i := range tables {
		t := tables[i]
		s.tables[lowerIdent(t.Name)] = &t
	}
}

// Tables returns the registered replicated table names, sorted.
func (s *Store) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for _, t := range s.tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Table returns the registered definition for a replicated table.
func (s *Store) Table(name string) (*schema.Table, bool) {
	t, ok := s.tables[lowerIdent(name)]
	return t, ok
}

// Install creates the metadata tables, initializes state (origin_id is
// generated once and never mutated), seeds the single session row, and
// installs the three capture triggers for every listed table. Safe to
// call repeatedly: every statement is idempotent.
func (s *Store) Install(ctx context.Context, tables []schema.Table) error {
	for _, stmt := range s.d.MetadataTablesSQL() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &types.DatabaseError{Message: "install metadata tables", Err: err}
		}
	}

	// Seed the session flag row exactly once.
	var sessionRows int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+dialect.SessionTable).Scan(&sessionRows); err != nil {
		return &types.DatabaseError{Message: "read session row", Err: err}
	}
	if sessionRows == 0 {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO "+dialect.SessionTable+" (sync_active) VALUES (0)"); err != nil {
			return &types.DatabaseError{Message: "seed session row", Err: err}
		}
	}

	if _, err := s.OriginID(ctx); err == types.ErrNotInitialized {
		if err := s.setState(ctx, types.StateKeyOriginID, newOriginID()); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	for i := range tables {
		t := &tables[i]
		stmts, err := s.d.SyncTriggersSQL(t)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return &types.DatabaseError{Message: fmt.Sprintf("install triggers for %s", t.Name), Err: err}
			}
		}
		s.tables[lowerIdent(t.Name)] = t
	}
	return nil
}

// Uninstall removes the capture triggers for one table. The log itself is
// retained; purging is the tombstone manager's job.
func (s *Store) Uninstall(ctx context.Context, table string) error {
	for _, stmt := range s.d.DropSyncTriggersSQL(table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &types.DatabaseError{Message: "drop triggers for " + table, Err: err}
		}
	}
	delete(s.tables, lowerIdent(table))
	return nil
}

// newOriginID generates a random UUIDv4-shaped origin identifier.
func newOriginID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("synclog: crypto/rand unavailable: " + err.Error())
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	h := hex.EncodeToString(b[:])
	return h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:32]
}

// OriginID returns this peer's stable origin identifier.
func (s *Store) OriginID(ctx context.Context) (string, error) {
	return s.state(ctx, types.StateKeyOriginID)
}

// LastServerVersion is the pull watermark: the highest remote version
// durably applied here.
func (s *Store) LastServerVersion(ctx context.Context) (int64, error) {
	return s.stateInt(ctx, types.StateKeyLastServerVersion)
}

// SetLastServerVersion advances the pull watermark. Called by the
// coordinator at batch commit boundaries only.
func (s *Store) SetLastServerVersion(ctx context.Context, v int64) error {
	return s.setState(ctx, types.StateKeyLastServerVersion, strconv.FormatInt(v, 10))
}

// LastPushVersion is the push watermark: the highest local version the
// remote has acknowledged.
func (s *Store) LastPushVersion(ctx context.Context) (int64, error) {
	return s.stateInt(ctx, types.StateKeyLastPushVersion)
}

// SetLastPushVersion advances the push watermark.
func (s *Store) SetLastPushVersion(ctx context.Context, v int64) error {
	return s.setState(ctx, types.StateKeyLastPushVersion, strconv.FormatInt(v, 10))
}

func (s *Store) state(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM "+dialect.StateTable+" WHERE "+s.keyCol()+" = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", types.ErrNotInitialized
	}
	if err != nil {
		return "", &types.DatabaseError{Message: "read state " + key, Err: err}
	}
	return value, nil
}

func (s *Store) stateInt(ctx context.Context, key string) (int64, error) {
	raw, err := s.state(ctx, key)
	if err == types.ErrNotInitialized {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.InvalidArgumentf("state %s is not an integer: %q", key, raw)
	}
	return v, nil
}

func (s *Store) setState(ctx context.Context, key, value string) error {
	stmt := s.d.UpsertSQL(dialect.StateTable, []string{"key", "value"}, []string{"key"}, nil)
	if _, err := s.db.ExecContext(ctx, stmt, key, value); err != nil {
		return &types.DatabaseError{Message: "write state " + key, Err: err}
	}
	return nil
}

// keyCol quotes the state key column, which is a reserved word on MySQL.
func (s *Store) keyCol() string {
	return s.d.QuoteIdent("key")
}

func lowerIdent(name string) string {
	b := []byte(name)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
