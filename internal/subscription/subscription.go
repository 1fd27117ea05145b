// Package subscription filters outgoing change batches down to what a
// peer asked for. With no subscriptions registered a peer receives
// everything; the moment it has any, only matching entries flow.
package subscription

import (
	"encoding/json"
	"strings"

	"github.com/steveyegge/tandem/internal/types"
)

// Active reports whether a subscription is still in force at now.
// Expiry is exclusive of the boundary: a subscription expiring exactly
// at now is still active. Timestamps are fixed-width RFC 3339 UTC, so
// string comparison is chronological.
func Active(sub *types.Subscription, now string) bool {
	if sub.ExpiresAt == "" {
		return true
	}
	return sub.ExpiresAt >= now
}

// Matches reports whether one log entry falls under a subscription.
// Expired subscriptions never match.
func Matches(e *types.LogEntry, sub *types.Subscription, now string) bool {
	if !Active(sub, now) {
		return false
	}
	if !strings.EqualFold(e.Table, sub.TableName) {
		return false
	}
	switch sub.Type {
	case types.SubTable, types.SubQuery:
		// Query subscriptions filter at the table level here; the
		// filter expression applies when the snapshot is built.
		return true
	case types.SubRecord:
		return pkInFilter(e, sub.Filter)
	}
	return false
}

// Filter returns the entries a peer should receive given its
// subscription set. An empty set means the peer takes the full feed.
func Filter(entries []types.LogEntry, subs []types.Subscription, now string) []types.LogEntry {
	if len(subs) == 0 {
		return entries
	}
	var out []types.LogEntry
	for i := range entries {
		for j := range subs {
			if Matches(&entries[i], &subs[j], now) {
				out = append(out, entries[i])
				break
			}
		}
	}
	return out
}

// pkInFilter checks a record subscription's filter, a JSON array of
// primary key values, against the entry's pk. Each element is compared
// against every value in the pk object so single-column keys can be
// listed as bare scalars.
func pkInFilter(e *types.LogEntry, filter string) bool {
	if filter == "" {
		return false
	}
	var wanted []json.RawMessage
	if err := json.Unmarshal([]byte(filter), &wanted); err != nil {
		// Not an array; fall back to substring match on the raw pk.
		return strings.Contains(string(e.PK), filter)
	}
	var pk map[string]json.RawMessage
	if err := json.Unmarshal(e.PK, &pk); err != nil {
		return false
	}
	for _, w := range wanted {
		for _, v := range pk {
			if jsonEqual(v, w) {
				return true
			}
		}
	}
	return false
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return stringify(av) == stringify(bv)
}

// stringify collapses scalar JSON values to comparable text, so 1 and
// 1.0 compare equal and "1" stays distinct from 1 only by quoting.
func stringify(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
