// Package conflict decides which side of a concurrent edit wins when
// both peers changed the same row since they last synced.
package conflict

import (
	"github.com/steveyegge/tandem/internal/types"
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	// LastWriteWins picks the entry with the later capture timestamp,
	// breaking ties by higher version. The default.
	LastWriteWins Strategy = "last-write-wins"
	// ServerWins always keeps the remote entry.
	ServerWins Strategy = "server-wins"
	// ClientWins always keeps the local entry.
	ClientWins Strategy = "client-wins"
	// Custom delegates to a caller-supplied function.
	Custom Strategy = "custom"
)

// Winner identifies which side a resolution kept.
type Winner int

const (
	WinnerLocal Winner = iota
	WinnerRemote
)

// Resolution records the outcome of resolving one conflict.
type Resolution struct {
	Winner   Winner
	Strategy Strategy
	// Entry is the surviving change.
	Entry *types.LogEntry
}

// CustomFunc resolves a conflict the built-in strategies cannot. It
// returns the surviving entry, which must be one of the two inputs.
type CustomFunc func(local, remote *types.LogEntry) (*types.LogEntry, error)

// Resolver applies one strategy to row-level conflicts.
type Resolver struct {
	strategy Strategy
	custom   CustomFunc
}

// New builds a resolver. Custom strategies require fn; the other
// strategies ignore it.
func New(strategy Strategy, fn CustomFunc) (*Resolver, error) {
	switch strategy {
	case LastWriteWins, ServerWins, ClientWins:
		return &Resolver{strategy: strategy}, nil
	case Custom:
		if fn == nil {
			return nil, types.InvalidArgumentf("custom strategy requires a resolve function")
		}
		return &Resolver{strategy: strategy, custom: fn}, nil
	}
	return nil, types.InvalidArgumentf("unknown conflict strategy %q", strategy)
}

// Default returns the last-write-wins resolver.
func Default() *Resolver {
	return &Resolver{strategy: LastWriteWins}
}

// Strategy reports the configured policy.
func (r *Resolver) Strategy() Strategy { return r.strategy }

// Resolve picks the surviving entry. local is this peer's uncommitted
// change, remote the incoming one for the same row.
func (r *Resolver) Resolve(local, remote *types.LogEntry) (*Resolution, error) {
	switch r.strategy {
	case ServerWins:
		return &Resolution{Winner: WinnerRemote, Strategy: r.strategy, Entry: remote}, nil
	case ClientWins:
		return &Resolution{Winner: WinnerLocal, Strategy: r.strategy, Entry: local}, nil
	case Custom:
		entry, err := r.custom(local, remote)
		if err != nil {
			return nil, &types.UnresolvedConflictError{Local: *local, Remote: *remote, Reason: err.Error()}
		}
		if entry != local && entry != remote {
			return nil, &types.UnresolvedConflictError{Local: *local, Remote: *remote,
				Reason: "custom resolver returned an entry that is neither side"}
		}
		res := &Resolution{Winner: WinnerLocal, Strategy: r.strategy, Entry: entry}
		if entry == remote {
			res.Winner = WinnerRemote
		}
		return res, nil
	}

	// Last write wins. Timestamps are fixed-width RFC 3339 UTC with
	// millisecond precision, so lexicographic order is chronological
	// order and no parsing is needed.
	res := &Resolution{Strategy: LastWriteWins}
	switch {
	case remote.Timestamp > local.Timestamp:
		res.Winner, res.Entry = WinnerRemote, remote
	case remote.Timestamp < local.Timestamp:
		res.Winner, res.Entry = WinnerLocal, local
	case remote.Version > local.Version:
		res.Winner, res.Entry = WinnerRemote, remote
	default:
		res.Winner, res.Entry = WinnerLocal, local
	}
	return res, nil
}
