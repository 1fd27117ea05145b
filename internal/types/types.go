// Package types defines core data structures for the tandem replication engine.
package types

import (
	"encoding/json"
	"time"
)

// Operation is the kind of row change captured in the sync log.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the three known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// TimestampLayout is the wire timestamp format: RFC3339 with millisecond
// precision in UTC. Entries compare timestamps lexicographically, which is
// only sound because every peer emits this exact layout.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Now returns the current time rendered in the wire timestamp layout.
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// LogEntry is one captured row change. Entries are append-only; Version is
// assigned by the storage engine at insertion and is strictly monotonic
// within one store.
//
// PK is always a JSON object ({col: val, ...}) so composite keys need no
// special casing. Payload is the full new row for insert/update and JSON
// null for delete.
type LogEntry struct {
	Version   int64           `json:"version"`
	Table     string          `json:"table"`
	PK        json.RawMessage `json:"pk"`
	Op        Operation       `json:"op"`
	Payload   json.RawMessage `json:"payload"`
	Origin    string          `json:"origin"`
	Timestamp string          `json:"ts"`
}

// PKString returns the primary key as its raw JSON text. Used for log
// output and conflict detection keys.
func (e *LogEntry) PKString() string {
	return string(e.PK)
}

// SameRow reports whether two entries address the same (table, pk) row.
// Table comparison is case-insensitive to match identifier semantics;
// PK comparison uses canonical JSON equality performed by the caller when
// byte equality is insufficient.
func (e *LogEntry) SameRow(other *LogEntry) bool {
	return equalFold(e.Table, other.Table) && string(e.PK) == string(other.PK)
}

// equalFold is a minimal ASCII case-insensitive compare. SQL identifiers
// in this engine are ASCII; avoiding strings.EqualFold keeps types free of
// imports that drag in locale behavior.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Batch is the unit of transfer between peers. Hash, when set, is the
// SHA-256 over the canonical JSON of Entries in version order and must be
// verified before any entry is applied.
type Batch struct {
	Entries     []LogEntry `json:"entries"`
	FromVersion int64      `json:"fromVersion"`
	ToVersion   int64      `json:"toVersion"`
	HasMore     bool       `json:"hasMore"`
	Hash        string     `json:"hash,omitempty"`
}

// BatchConfig tunes fetching and applying.
type BatchConfig struct {
	// Size is the maximum number of entries per batch.
	Size int
	// MaxApplyPasses bounds the deferred-retry loop in the applier.
	MaxApplyPasses int
	// WithHash requests a batch hash on every fetched batch.
	WithHash bool
}

// DefaultBatchSize is used when BatchConfig.Size is zero.
const DefaultBatchSize = 500

// DefaultMaxApplyPasses is used when BatchConfig.MaxApplyPasses is zero.
const DefaultMaxApplyPasses = 3

// Normalize fills zero fields with defaults.
func (c BatchConfig) Normalize() BatchConfig {
	if c.Size <= 0 {
		c.Size = DefaultBatchSize
	}
	if c.MaxApplyPasses <= 0 {
		c.MaxApplyPasses = DefaultMaxApplyPasses
	}
	return c
}

// Client is the server-side record of a known peer, upserted on contact.
type Client struct {
	OriginID          string    `json:"origin_id"`
	LastSyncVersion   int64     `json:"last_sync_version"`
	LastSyncTimestamp time.Time `json:"last_sync_timestamp"`
	CreatedAt         time.Time `json:"created_at"`
}

// SubscriptionType classifies what a peer subscription selects.
type SubscriptionType string

const (
	// SubRecord selects individual rows listed in the subscription filter.
	SubRecord SubscriptionType = "record"
	// SubTable selects every row of one table.
	SubTable SubscriptionType = "table"
	// SubQuery selects rows of one table subject to a host-evaluated
	// predicate. This engine only matches the table dimension.
	SubQuery SubscriptionType = "query"
)

// Subscription describes which log entries a peer wants to receive.
//
// ExpiresAt is an RFC3339 string, empty meaning "never". Expiry is strict:
// a subscription whose ExpiresAt equals the current instant is still live.
type Subscription struct {
	ID        string           `json:"subscription_id"`
	OriginID  string           `json:"origin_id"`
	Type      SubscriptionType `json:"type"`
	TableName string           `json:"table_name"`
	Filter    string           `json:"filter,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt string           `json:"expires_at,omitempty"`
}

// State keys persisted in the _sync_state table. origin_id is written once
// at installation and never mutated afterwards.
const (
	StateKeyOriginID          = "origin_id"
	StateKeyLastServerVersion = "last_server_version"
	StateKeyLastPushVersion   = "last_push_version"
)

// PullResult summarizes one pull (or the pull half of a sync) pass.
type PullResult struct {
	ChangesApplied int   `json:"changes_applied"`
	FromVersion    int64 `json:"from_version"`
	ToVersion      int64 `json:"to_version"`
}

// PushResult summarizes one push pass.
type PushResult struct {
	ChangesSent int   `json:"changes_sent"`
	FromVersion int64 `json:"from_version"`
	ToVersion   int64 `json:"to_version"`
}

// SyncResult combines both halves of a full sync pass.
type SyncResult struct {
	Pull PullResult `json:"pull"`
	Push PushResult `json:"push"`
}
