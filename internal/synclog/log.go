package synclog

import (
	"context"
	"database/sql"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/types"
)

// Append writes one entry directly to the log, returning the assigned
// version. The normal capture path is the triggers; direct appends serve
// server-side receive paths and tests.
func (s *Store) Append(ctx context.Context, e *types.LogEntry) (int64, error) {
	if !e.Op.Valid() {
		return 0, types.InvalidArgumentf("unknown operation %q", e.Op)
	}
	payload := interface{}(nil)
	if len(e.Payload) > 0 && string(e.Payload) != "null" {
		payload = string(e.Payload)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO "+dialect.LogTable+
			" (table_name, pk_value, operation, payload, origin, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		e.Table, string(e.PK), string(e.Op), payload, e.Origin, e.Timestamp)
	if err != nil {
		return 0, &types.DatabaseError{Message: "append log entry", Err: err}
	}
	version, err := res.LastInsertId()
	if err != nil {
		return 0, &types.DatabaseError{Message: "append log entry: version", Err: err}
	}
	return version, nil
}

// FetchSince reads up to limit entries with version > fromVersion in
// ascending version order. hasMore is true exactly when the store held at
// least one more row past the limit; it is detected by over-fetching one
// row rather than issuing a second count query.
func (s *Store) FetchSince(ctx context.Context, fromVersion int64, limit int) ([]types.LogEntry, bool, error) {
	if limit <= 0 {
		limit = types.DefaultBatchSize
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT version, table_name, pk_value, operation, payload, origin, timestamp FROM "+
			dialect.LogTable+" WHERE version > ? ORDER BY version ASC LIMIT ?",
		fromVersion, limit+1)
	if err != nil {
		return nil, false, &types.DatabaseError{Message: "fetch log entries", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var entries []types.LogEntry
	for rows.Next() {
		var e types.LogEntry
		var pk, op string
		var payload sql.NullString
		if err := rows.Scan(&e.Version, &e.Table, &pk, &op, &payload, &e.Origin, &e.Timestamp); err != nil {
			return nil, false, &types.DatabaseError{Message: "scan log entry", Err: err}
		}
		e.PK = []byte(pk)
		e.Op = types.Operation(op)
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, &types.DatabaseError{Message: "fetch log entries", Err: err}
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return entries, hasMore, nil
}

// OldestVersion returns the lowest retained log version, or 0 for an
// empty log. The tombstone manager compares peer watermarks against this
// to detect too-far-behind clients.
func (s *Store) OldestVersion(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(version) FROM "+dialect.LogTable).Scan(&v)
	if err != nil {
		return 0, &types.DatabaseError{Message: "read oldest log version", Err: err}
	}
	return v.Int64, nil
}

// MaxVersion returns the highest assigned log version, or 0 for an empty
// log.
func (s *Store) MaxVersion(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(version) FROM "+dialect.LogTable).Scan(&v)
	if err != nil {
		return 0, &types.DatabaseError{Message: "read max log version", Err: err}
	}
	return v.Int64, nil
}

// CountSince reports how many log rows exist past a version; the status
// command uses this to show pending pushes.
func (s *Store) CountSince(ctx context.Context, fromVersion int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+dialect.LogTable+" WHERE version > ?", fromVersion).Scan(&n)
	if err != nil {
		return 0, &types.DatabaseError{Message: "count log entries", Err: err}
	}
	return n, nil
}

// LatestChange returns the newest local log entry for a row past the
// given version, or nil when the row has no pending change. Conflict
// detection during pull asks this about each incoming row, with the
// push watermark as sinceVersion.
func (s *Store) LatestChange(ctx context.Context, table, pk string, sinceVersion int64) (*types.LogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT version, table_name, pk_value, operation, payload, origin, timestamp FROM "+
			dialect.LogTable+" WHERE table_name = ? AND pk_value = ? AND version > ? "+
			"ORDER BY version DESC LIMIT 1",
		table, pk, sinceVersion)

	var e types.LogEntry
	var pkVal, op string
	var payload sql.NullString
	err := row.Scan(&e.Version, &e.Table, &pkVal, &op, &payload, &e.Origin, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &types.DatabaseError{Message: "read latest change", Err: err}
	}
	e.PK = []byte(pkVal)
	e.Op = types.Operation(op)
	if payload.Valid {
		e.Payload = []byte(payload.String)
	}
	return &e, nil
}

// PurgeThrough deletes log rows with version <= v, returning the count.
// Callers must pass a safe purge point computed from client watermarks;
// purging past a live peer's watermark forces that peer into full resync.
func (s *Store) PurgeThrough(ctx context.Context, v int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+dialect.LogTable+" WHERE version <= ?", v)
	if err != nil {
		return 0, &types.DatabaseError{Message: "purge log entries", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &types.DatabaseError{Message: "purge log entries: count", Err: err}
	}
	return n, nil
}
