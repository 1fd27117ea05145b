// Package dialect defines the engine abstraction: rendering portable
// types and default expressions to native SQL, generating idempotent DDL
// and change-capture triggers, and inspecting live schemas.
//
// Concrete engines live in the sqlite and mysql sub-packages. The mysql
// dialect also serves Dolt, which speaks the MySQL surface.
package dialect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/steveyegge/tandem/internal/schema"
)

// Metadata table names. These are normative: two peers installed by this
// engine interoperate through a shared backing store by these names.
const (
	LogTable          = "_sync_log"
	StateTable        = "_sync_state"
	SessionTable      = "_sync_session"
	ClientsTable      = "_sync_clients"
	SubscriptionsTable = "_sync_subscriptions"
)

// Dialect renders schema objects and replication plumbing for one engine.
// All DDL output is idempotent (IF NOT EXISTS / IF EXISTS) so reruns of a
// partially applied migration are safe.
type Dialect interface {
	// Name identifies the engine ("sqlite", "mysql").
	Name() string

	// QuoteIdent quotes a SQL identifier.
	QuoteIdent(ident string) string

	// RenderType maps a portable type to the engine's native type.
	// Rendering is total: every portable kind has a native rendering.
	RenderType(t schema.PortableType) string

	// RenderDefault translates a default-expression DSL string to native
	// SQL. Input is normalized (trimmed, lowercased) first; already-native
	// SQL passes through unchanged, making translation idempotent.
	RenderDefault(dsl string) (string, error)

	// CreateTableSQL renders the full idempotent CREATE TABLE statement,
	// including primary key, inline foreign keys, and unique constraints.
	CreateTableSQL(t *schema.Table) (string, error)

	// AddColumnSQL renders ALTER TABLE ... ADD COLUMN.
	AddColumnSQL(table string, c *schema.Column) (string, error)

	// CreateIndexSQL renders an idempotent CREATE [UNIQUE] INDEX for a
	// column or expression index.
	CreateIndexSQL(table string, ix *schema.Index) string

	// AddForeignKeySQL renders ALTER TABLE ... ADD CONSTRAINT for engines
	// that support it; engines that only accept inline FKs return an error
	// identifying the limitation.
	AddForeignKeySQL(table string, fk *schema.ForeignKey) (string, error)

	// AddUniqueSQL renders the addition of a named unique constraint.
	AddUniqueSQL(table string, u *schema.Unique) (string, error)

	// Drop-side rendering. All idempotent.
	DropTableSQL(table string) string
	DropColumnSQL(table, column string) string
	DropIndexSQL(table, index string) string
	DropForeignKeySQL(table, constraint string) (string, error)
	DropUniqueSQL(table, constraint string) (string, error)

	// SupportsTransactionalDDL reports whether DDL participates in
	// transactions. When false the runner executes each operation in its
	// own implicit transaction and reports failures per operation.
	SupportsTransactionalDDL() bool

	// Inspect reads the live schema. Expression index bodies may not be
	// fully recoverable on every engine; the index name always is, which
	// is all the diff needs.
	Inspect(ctx context.Context, db *sql.DB) (*schema.Definition, error)

	// SyncTriggersSQL renders the three change-capture triggers
	// (insert/update/delete) for one replicated table. The triggers
	// consult the session suppression flag and append to the sync log.
	SyncTriggersSQL(t *schema.Table) ([]string, error)

	// DropSyncTriggersSQL renders removal of the capture triggers.
	DropSyncTriggersSQL(table string) []string

	// MetadataTablesSQL renders the idempotent DDL for the _sync_*
	// metadata tables and their indexes.
	MetadataTablesSQL() []string

	// UpsertSQL renders an insert-or-update statement with ? placeholders
	// for every column, keyed on pkColumns. Replicated inserts and
	// updates both apply through this so re-delivery and conflict
	// overwrites are idempotent. updateColumns restricts the ON CONFLICT
	// update set; nil means every non-key column. Columns left out keep
	// their stored value on conflict (insert-once fields like
	// created_at).
	UpsertSQL(table string, columns, pkColumns, updateColumns []string) string
}

// TriggerName returns the deterministic name of a capture trigger.
func TriggerName(table string, op string) string {
	return "_sync_trg_" + table + "_" + op
}

// IsMetaTable reports whether a table name belongs to the replication
// metadata set. Inspect must never surface these: they are not part of
// the user schema, and a destructive diff that saw them would plan
// dropping the engine's own state.
func IsMetaTable(name string) bool {
	switch strings.ToLower(name) {
	case LogTable, StateTable, SessionTable, ClientsTable, SubscriptionsTable:
		return true
	}
	return false
}
