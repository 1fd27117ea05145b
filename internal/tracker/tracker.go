// Package tracker computes retention decisions from peer watermarks:
// how far the change log can be purged, which peers have fallen too far
// behind, and which have gone stale.
package tracker

import (
	"time"

	"github.com/steveyegge/tandem/internal/types"
)

// SafePurgeVersion returns the highest log version that every known peer
// has already consumed. Purging through this version cannot strand a
// peer. With no registered peers nothing is provably safe, so the floor
// is 0.
func SafePurgeVersion(clients []types.Client) int64 {
	if len(clients) == 0 {
		return 0
	}
	min := clients[0].LastSyncVersion
	for _, c := range clients[1:] {
		if c.LastSyncVersion < min {
			min = c.LastSyncVersion
		}
	}
	return min
}

// CheckResyncRequired reports whether a peer at clientVersion can still
// be served incrementally: a watermark below the log's oldest retained
// version means purging has moved past the peer and it must rebuild
// from a full snapshot.
//
// oldestAvailable is the MIN(version) of the retained log, 0 when the
// log is empty. Versions start at 1, so oldestAvailable <= 1 means the
// log still holds everything ever written; any watermark, including a
// fresh peer's 0, can be served from it.
func CheckResyncRequired(clientVersion, oldestAvailable int64) error {
	if oldestAvailable <= 1 {
		return nil
	}
	if clientVersion < oldestAvailable {
		return &types.FullResyncRequiredError{
			ClientVersion:          clientVersion,
			OldestAvailableVersion: oldestAvailable,
		}
	}
	return nil
}

// StaleClients returns the peers whose last contact is older than the
// window. Peers that never synced (zero timestamp) are always stale.
func StaleClients(clients []types.Client, now time.Time, window time.Duration) []types.Client {
	var stale []types.Client
	cutoff := now.Add(-window)
	for _, c := range clients {
		if c.LastSyncTimestamp.IsZero() || c.LastSyncTimestamp.Before(cutoff) {
			stale = append(stale, c)
		}
	}
	return stale
}
