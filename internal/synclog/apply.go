package synclog

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/steveyegge/tandem/internal/types"
)

// ApplyEntry writes one replicated entry into its user table. Inserts and
// updates both go through the dialect's upsert so re-delivery and
// conflict overwrites are idempotent; deletes that find no row are
// likewise a no-op.
//
// Callers are responsible for suppression: ApplyEntry itself does not
// toggle the session flag.
func (s *Store) ApplyEntry(ctx context.Context, e *types.LogEntry) error {
	t, ok := s.Table(e.Table)
	if !ok {
		return types.InvalidArgumentf("table %q is not registered for replication", e.Table)
	}

	pk, err := decodeObject(e.PK)
	if err != nil {
		return types.InvalidArgumentf("entry v%d: bad pk: %v", e.Version, err)
	}

	switch e.Op {
	case types.OpInsert, types.OpUpdate:
		payload, err := decodeObject(e.Payload)
		if err != nil {
			return types.InvalidArgumentf("entry v%d: bad payload: %v", e.Version, err)
		}
		return s.upsertRow(ctx, e, t.PrimaryKey, payload)
	case types.OpDelete:
		return s.deleteRow(ctx, e, pk)
	}
	return types.InvalidArgumentf("entry v%d: unknown operation %q", e.Version, e.Op)
}

func (s *Store) upsertRow(ctx context.Context, e *types.LogEntry, pkCols []string, payload map[string]interface{}) error {
	t, _ := s.Table(e.Table)

	// Column order follows the table definition so the statement text is
	// stable; payload keys beyond the known schema are ignored.
	var columns []string
	var values []interface{}
	for i := range t.Columns {
		name := t.Columns[i].Name
		if v, ok := lookupFold(payload, name); ok {
			columns = append(columns, name)
			values = append(values, sqlValue(v))
		}
	}
	if len(columns) == 0 {
		return types.InvalidArgumentf("entry v%d: payload has no known columns for %s", e.Version, e.Table)
	}

	stmt := s.d.UpsertSQL(t.Name, columns, pkCols, nil)
	if _, err := s.db.ExecContext(ctx, stmt, values...); err != nil {
		return &types.DatabaseError{Message: "apply " + string(e.Op) + " to " + e.Table, Err: err}
	}
	return nil
}

func (s *Store) deleteRow(ctx context.Context, e *types.LogEntry, pk map[string]interface{}) error {
	t, _ := s.Table(e.Table)
	var where []byte
	var values []interface{}
	for _, col := range t.PrimaryKey {
		v, ok := lookupFold(pk, col)
		if !ok {
			return types.InvalidArgumentf("entry v%d: pk missing column %q", e.Version, col)
		}
		if len(where) > 0 {
			where = append(where, " AND "...)
		}
		where = append(where, (s.d.QuoteIdent(col) + " = ?")...)
		values = append(values, sqlValue(v))
	}
	stmt := "DELETE FROM " + s.d.QuoteIdent(t.Name) + " WHERE " + string(where)
	if _, err := s.db.ExecContext(ctx, stmt, values...); err != nil {
		return &types.DatabaseError{Message: "apply delete to " + e.Table, Err: err}
	}
	return nil
}

// decodeObject parses a JSON object preserving number text.
func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// lookupFold finds a payload key case-insensitively, matching the
// engine's identifier semantics.
func lookupFold(m map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	lower := lowerIdent(key)
	for k, v := range m {
		if lowerIdent(k) == lower {
			return v, true
		}
	}
	return nil, false
}

// sqlValue converts a decoded JSON value into a driver-friendly
// argument. Numbers stay textual; both engines coerce to the declared
// column type on write.
func sqlValue(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		return val.String()
	case map[string]interface{}, []interface{}:
		// Nested JSON stores as its serialized text.
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}
