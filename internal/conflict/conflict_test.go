package conflict

import (
	"errors"
	"testing"

	"github.com/steveyegge/tandem/internal/types"
)

func entry(version int64, origin, ts string) *types.LogEntry {
	return &types.LogEntry{
		Version:   version,
		Table:     "tasks",
		PK:        []byte(`{"id":1}`),
		Op:        types.OpUpdate,
		Payload:   []byte(`{"id":1,"title":"x"}`),
		Origin:    origin,
		Timestamp: ts,
	}
}

func TestLastWriteWinsByTimestamp(t *testing.T) {
	local := entry(10, "a", "2026-01-02T10:00:00.000Z")
	remote := entry(7, "b", "2026-01-02T10:00:00.500Z")

	res, err := Default().Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Winner != WinnerRemote {
		t.Errorf("expected remote to win on later timestamp, got winner %v", res.Winner)
	}
	if res.Entry != remote {
		t.Error("resolution entry is not the remote entry")
	}
}

func TestLastWriteWinsTieBreaksOnVersion(t *testing.T) {
	ts := "2026-01-02T10:00:00.000Z"
	local := entry(10, "a", ts)
	remote := entry(12, "b", ts)

	res, err := Default().Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Winner != WinnerRemote {
		t.Errorf("equal timestamps should fall to higher version; got winner %v", res.Winner)
	}
}

func TestLastWriteWinsLocalOnFullTie(t *testing.T) {
	ts := "2026-01-02T10:00:00.000Z"
	local := entry(10, "a", ts)
	remote := entry(10, "b", ts)

	res, err := Default().Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Winner != WinnerLocal {
		t.Errorf("full tie should keep local, got winner %v", res.Winner)
	}
}

func TestFixedStrategies(t *testing.T) {
	local := entry(10, "a", "2026-01-02T10:00:00.999Z")
	remote := entry(7, "b", "2026-01-02T10:00:00.000Z")

	r, err := New(ServerWins, nil)
	if err != nil {
		t.Fatalf("New(ServerWins) failed: %v", err)
	}
	res, err := r.Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Winner != WinnerRemote {
		t.Errorf("server-wins must keep remote regardless of timestamps")
	}

	r, err = New(ClientWins, nil)
	if err != nil {
		t.Fatalf("New(ClientWins) failed: %v", err)
	}
	res, err = r.Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Winner != WinnerLocal {
		t.Errorf("client-wins must keep local regardless of timestamps")
	}
}

func TestCustomStrategy(t *testing.T) {
	local := entry(10, "a", "2026-01-02T10:00:00.000Z")
	remote := entry(7, "b", "2026-01-02T10:00:00.500Z")

	r, err := New(Custom, func(l, rm *types.LogEntry) (*types.LogEntry, error) {
		return l, nil
	})
	if err != nil {
		t.Fatalf("New(Custom) failed: %v", err)
	}
	res, err := r.Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Winner != WinnerLocal || res.Entry != local {
		t.Error("custom resolver's pick was not honored")
	}
}

func TestCustomStrategyFailure(t *testing.T) {
	r, err := New(Custom, func(l, rm *types.LogEntry) (*types.LogEntry, error) {
		return nil, errors.New("cannot decide")
	})
	if err != nil {
		t.Fatalf("New(Custom) failed: %v", err)
	}
	_, err = r.Resolve(entry(1, "a", "2026-01-01T00:00:00.000Z"), entry(2, "b", "2026-01-01T00:00:00.000Z"))
	var unresolved *types.UnresolvedConflictError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedConflictError, got %v", err)
	}
}

func TestCustomRequiresFunc(t *testing.T) {
	if _, err := New(Custom, nil); err == nil {
		t.Fatal("expected error for custom strategy without a function")
	}
}

func TestUnknownStrategy(t *testing.T) {
	if _, err := New(Strategy("majority-vote"), nil); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
