package synclog

import (
	"context"
	"database/sql"
	"time"

	"github.com/steveyegge/tandem/internal/dialect"
	"github.com/steveyegge/tandem/internal/types"
)

// UpsertClient records contact from a peer, creating the row on first
// contact and advancing its watermark thereafter. created_at is written
// once at registration and never updated.
func (s *Store) UpsertClient(ctx context.Context, originID string, lastSyncVersion int64) error {
	now := time.Now().UTC()
	stmt := s.d.UpsertSQL(dialect.ClientsTable,
		[]string{"origin_id", "last_sync_version", "last_sync_timestamp", "created_at"},
		[]string{"origin_id"},
		[]string{"last_sync_version", "last_sync_timestamp"})
	if _, err := s.db.ExecContext(ctx, stmt, originID, lastSyncVersion, now, now); err != nil {
		return &types.DatabaseError{Message: "upsert client " + originID, Err: err}
	}
	return nil
}

// Clients lists every known peer.
func (s *Store) Clients(ctx context.Context) ([]types.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT origin_id, last_sync_version, last_sync_timestamp, created_at FROM "+
			dialect.ClientsTable+" ORDER BY created_at")
	if err != nil {
		return nil, &types.DatabaseError{Message: "list clients", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var clients []types.Client
	for rows.Next() {
		var c types.Client
		var lastSync, created sql.NullTime
		if err := rows.Scan(&c.OriginID, &c.LastSyncVersion, &lastSync, &created); err != nil {
			return nil, &types.DatabaseError{Message: "scan client", Err: err}
		}
		c.LastSyncTimestamp = lastSync.Time
		c.CreatedAt = created.Time
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.DatabaseError{Message: "list clients", Err: err}
	}
	return clients, nil
}

// DeleteClient removes a peer record; used for administrative cleanup of
// stale clients after the host confirms.
func (s *Store) DeleteClient(ctx context.Context, originID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM "+dialect.ClientsTable+" WHERE origin_id = ?", originID); err != nil {
		return &types.DatabaseError{Message: "delete client " + originID, Err: err}
	}
	return nil
}

// AddSubscription registers what a peer wants to receive.
func (s *Store) AddSubscription(ctx context.Context, sub *types.Subscription) error {
	if sub.ID == "" {
		sub.ID = newOriginID()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	stmt := s.d.UpsertSQL(dialect.SubscriptionsTable,
		[]string{"subscription_id", "origin_id", "type", "table_name", "filter", "created_at", "expires_at"},
		[]string{"subscription_id"},
		[]string{"origin_id", "type", "table_name", "filter", "expires_at"})
	var filter, expires interface{}
	if sub.Filter != "" {
		filter = sub.Filter
	}
	if sub.ExpiresAt != "" {
		expires = sub.ExpiresAt
	}
	if _, err := s.db.ExecContext(ctx, stmt,
		sub.ID, sub.OriginID, string(sub.Type), sub.TableName, filter, sub.CreatedAt, expires); err != nil {
		return &types.DatabaseError{Message: "add subscription", Err: err}
	}
	return nil
}

// Subscriptions lists a peer's subscriptions, or all when originID is
// empty.
func (s *Store) Subscriptions(ctx context.Context, originID string) ([]types.Subscription, error) {
	query := "SELECT subscription_id, origin_id, type, table_name, filter, created_at, expires_at FROM " +
		dialect.SubscriptionsTable
	var args []interface{}
	if originID != "" {
		query += " WHERE origin_id = ?"
		args = append(args, originID)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &types.DatabaseError{Message: "list subscriptions", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var subs []types.Subscription
	for rows.Next() {
		var sub types.Subscription
		var subType string
		var filter, expires sql.NullString
		var created sql.NullTime
		if err := rows.Scan(&sub.ID, &sub.OriginID, &subType, &sub.TableName, &filter, &created, &expires); err != nil {
			return nil, &types.DatabaseError{Message: "scan subscription", Err: err}
		}
		sub.Type = types.SubscriptionType(subType)
		sub.Filter = filter.String
		sub.ExpiresAt = expires.String
		sub.CreatedAt = created.Time
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.DatabaseError{Message: "list subscriptions", Err: err}
	}
	return subs, nil
}

// DeleteSubscription removes one subscription by id.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM "+dialect.SubscriptionsTable+" WHERE subscription_id = ?", id); err != nil {
		return &types.DatabaseError{Message: "delete subscription " + id, Err: err}
	}
	return nil
}
