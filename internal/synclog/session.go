package synclog

import (
	"context"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/types"
)

// Suppress raises the session flag so capture triggers skip logging.
// Replays of remote changes run under suppression; otherwise every
// applied entry would be re-captured and echo back to its origin.
//
// Callers pair this with a deferred Unsuppress so the flag is released on
// every exit path:
//
//	if err := store.Suppress(ctx); err != nil { ... }
//	defer store.Unsuppress(context.Background())
func (s *Store) Suppress(ctx context.Context) error {
	return s.setSuppressed(ctx, 1)
}

// Unsuppress lowers the session flag. Runs with a background-safe context
// in defer position so cancellation cannot leave suppression stuck on.
func (s *Store) Unsuppress(ctx context.Context) error {
	return s.setSuppressed(ctx, 0)
}

func (s *Store) setSuppressed(ctx context.Context, v int) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE "+dialect.SessionTable+" SET sync_active = ?", v); err != nil {
		return &types.DatabaseError{Message: "set suppression flag", Err: err}
	}
	return nil
}

// Suppressed reports the current session flag. Used by tests and the
// status command; triggers read the flag directly in SQL.
func (s *Store) Suppressed(ctx context.Context) (bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sync_active), 0) FROM "+dialect.SessionTable).Scan(&v)
	if err != nil {
		return false, &types.DatabaseError{Message: "read suppression flag", Err: err}
	}
	return v != 0, nil
}
