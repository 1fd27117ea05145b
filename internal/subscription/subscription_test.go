package subscription

import (
	"testing"

	"github.com/steveyegge/tandem/internal/types"
)

const testNow = "2026-08-24T12:00:00.000Z"

func tableSub(table string) types.Subscription {
	return types.Subscription{ID: "s1", OriginID: "peer", Type: types.SubTable, TableName: table}
}

func entryFor(table, pk string) types.LogEntry {
	return types.LogEntry{
		Version: 1, Table: table, PK: []byte(pk),
		Op: types.OpInsert, Origin: "other", Timestamp: testNow,
	}
}

func TestTableSubscriptionMatches(t *testing.T) {
	sub := tableSub("tasks")
	e := entryFor("tasks", `{"id":1}`)
	if !Matches(&e, &sub, testNow) {
		t.Error("table subscription should match its table")
	}

	e = entryFor("notes", `{"id":1}`)
	if Matches(&e, &sub, testNow) {
		t.Error("table subscription must not match other tables")
	}

	// Table names compare case-insensitively.
	e = entryFor("TASKS", `{"id":1}`)
	if !Matches(&e, &sub, testNow) {
		t.Error("table match should be case-insensitive")
	}
}

func TestRecordSubscriptionMatchesPK(t *testing.T) {
	sub := types.Subscription{
		Type: types.SubRecord, TableName: "tasks", Filter: `[1, 7]`,
	}

	e := entryFor("tasks", `{"id":7}`)
	if !Matches(&e, &sub, testNow) {
		t.Error("record subscription should match a listed pk")
	}

	e = entryFor("tasks", `{"id":3}`)
	if Matches(&e, &sub, testNow) {
		t.Error("record subscription must not match unlisted pks")
	}
}

func TestRecordSubscriptionStringKeys(t *testing.T) {
	sub := types.Subscription{
		Type: types.SubRecord, TableName: "tasks", Filter: `["abc-1"]`,
	}
	e := entryFor("tasks", `{"uid":"abc-1"}`)
	if !Matches(&e, &sub, testNow) {
		t.Error("record subscription should match string pk values")
	}
}

func TestExpiry(t *testing.T) {
	sub := tableSub("tasks")
	e := entryFor("tasks", `{"id":1}`)

	sub.ExpiresAt = "2026-08-24T11:59:59.999Z"
	if Matches(&e, &sub, testNow) {
		t.Error("expired subscription must not match")
	}

	// Expiring exactly now is still active.
	sub.ExpiresAt = testNow
	if !Matches(&e, &sub, testNow) {
		t.Error("subscription expiring exactly now should still match")
	}

	sub.ExpiresAt = ""
	if !Matches(&e, &sub, testNow) {
		t.Error("subscription without expiry should match")
	}
}

func TestFilterEmptySubscriptionSetPassesAll(t *testing.T) {
	entries := []types.LogEntry{
		entryFor("tasks", `{"id":1}`),
		entryFor("notes", `{"id":2}`),
	}
	out := Filter(entries, nil, testNow)
	if len(out) != 2 {
		t.Fatalf("no subscriptions should mean full feed, got %d entries", len(out))
	}
}

func TestFilterRestrictsToSubscribedTables(t *testing.T) {
	entries := []types.LogEntry{
		entryFor("tasks", `{"id":1}`),
		entryFor("notes", `{"id":2}`),
		entryFor("tasks", `{"id":3}`),
	}
	subs := []types.Subscription{tableSub("tasks")}
	out := Filter(entries, subs, testNow)
	if len(out) != 2 {
		t.Fatalf("expected 2 task entries, got %d", len(out))
	}
	for _, e := range out {
		if e.Table != "tasks" {
			t.Errorf("leaked entry for table %s", e.Table)
		}
	}
}

func TestFilterDoesNotDuplicateOnOverlappingSubs(t *testing.T) {
	entries := []types.LogEntry{entryFor("tasks", `{"id":1}`)}
	subs := []types.Subscription{
		tableSub("tasks"),
		{Type: types.SubRecord, TableName: "tasks", Filter: `[1]`},
	}
	out := Filter(entries, subs, testNow)
	if len(out) != 1 {
		t.Fatalf("entry matching two subscriptions must appear once, got %d", len(out))
	}
}
