package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotInitialized is returned when the metadata tables have not been
// installed (e.g., the origin_id state row is missing).
var ErrNotInitialized = errors.New("replication not initialized")

// InvalidArgumentError reports null input, malformed DSL, or a config
// parse failure. It is always a caller bug, never a storage condition.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Reason
}

// InvalidArgumentf builds an InvalidArgumentError from a format string.
func InvalidArgumentf(format string, args ...interface{}) error {
	return &InvalidArgumentError{Reason: fmt.Sprintf(format, args...)}
}

// ForeignKeyViolationError is raised by the apply callback when an entry
// references a parent row that does not exist yet. The coordinator never
// sees this error: the applier converts it into a deferral.
type ForeignKeyViolationError struct {
	Table   string
	PK      string
	Details string
}

func (e *ForeignKeyViolationError) Error() string {
	return fmt.Sprintf("foreign key violation on %s %s: %s", e.Table, e.PK, e.Details)
}

// DeferredChangeFailedError means the deferred-retry pass budget was
// exhausted with entries still unapplied. Entry is the first entry that
// could not be applied.
type DeferredChangeFailedError struct {
	Entry  LogEntry
	Reason string
}

func (e *DeferredChangeFailedError) Error() string {
	return fmt.Sprintf("deferred change failed after retries: %s v%d %s: %s",
		e.Entry.Table, e.Entry.Version, e.Entry.PKString(), e.Reason)
}

// FullResyncRequiredError means a peer's watermark fell below the oldest
// retained log version; incremental sync cannot proceed and the peer must
// rebootstrap from a snapshot.
type FullResyncRequiredError struct {
	ClientVersion          int64
	OldestAvailableVersion int64
}

func (e *FullResyncRequiredError) Error() string {
	return fmt.Sprintf("full resync required: client at version %d, oldest available is %d",
		e.ClientVersion, e.OldestAvailableVersion)
}

// HashMismatchError reports a failed batch integrity check.
type HashMismatchError struct {
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// UnresolvedConflictError means the conflict strategy could not decide a
// winner (a custom resolver declined, or inputs were not comparable).
type UnresolvedConflictError struct {
	Local  LogEntry
	Remote LogEntry
	Reason string
}

func (e *UnresolvedConflictError) Error() string {
	msg := fmt.Sprintf("unresolved conflict on %s %s (local v%d from %s, remote v%d from %s)",
		e.Local.Table, e.Local.PKString(),
		e.Local.Version, e.Local.Origin,
		e.Remote.Version, e.Remote.Origin)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// DatabaseError wraps any storage error the engine cannot classify more
// precisely. It aborts the current batch; the watermark is not advanced.
type DatabaseError struct {
	Message string
	Err     error
}

func (e *DatabaseError) Error() string {
	if e.Err != nil {
		return "database error: " + e.Message + ": " + e.Err.Error()
	}
	return "database error: " + e.Message
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// DestructiveError reports an attempt to apply a drop-kind schema
// operation without opting into destructive migrations.
type DestructiveError struct {
	OperationKind string
}

func (e *DestructiveError) Error() string {
	return fmt.Sprintf("destructive operation %s requires allow-destructive", e.OperationKind)
}
