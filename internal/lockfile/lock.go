// Package lockfile serializes sync passes against a project directory
// using advisory file locks. Two processes syncing the same database
// concurrently would race on watermarks, so Pull/Push/Sync take the
// exclusive lock; read-only commands take the shared one.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SyncLockFileName is the lock file inside the project directory.
const SyncLockFileName = "sync.lock"

// ErrLockBusy means another process holds a conflicting lock.
var ErrLockBusy = errors.New("sync lock held by another process")

// LockInfo is written into the lock file so `tandem status` can report
// who holds it. The flock, not the content, is the source of truth.
type LockInfo struct {
	PID       int       `json:"pid"`
	Origin    string    `json:"origin,omitempty"`
	Database  string    `json:"database,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// SyncLock is a held lock. Release it when the sync pass finishes.
type SyncLock struct {
	f      *os.File
	shared bool
}

// Acquire takes the exclusive sync lock for the project directory.
// With wait=false it returns ErrLockBusy immediately when contended;
// with wait=true it blocks until the holder releases.
func Acquire(dir string, info LockInfo, wait bool) (*SyncLock, error) {
	f, err := openLockFile(dir)
	if err != nil {
		return nil, err
	}

	if wait {
		err = FlockExclusiveBlocking(f)
	} else {
		err = FlockExclusiveNonBlock(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	if data, err := json.Marshal(info); err == nil {
		_ = f.Truncate(0)
		_, _ = f.WriteAt(data, 0)
		_ = f.Sync()
	}

	return &SyncLock{f: f}, nil
}

// AcquireShared takes the shared lock. Multiple readers may hold it at
// once; it conflicts only with the exclusive lock.
func AcquireShared(dir string) (*SyncLock, error) {
	f, err := openLockFile(dir)
	if err != nil {
		return nil, err
	}
	if err := FlockSharedNonBlock(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &SyncLock{f: f, shared: true}, nil
}

// Release drops the lock. Safe to call on a nil lock.
func (l *SyncLock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = FlockUnlock(l.f)
	_ = l.f.Close()
	l.f = nil
}

func openLockFile(dir string) (*os.File, error) {
	path := filepath.Join(dir, SyncLockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 -- path derives from the project directory
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f, nil
}

// ReadLockInfo reads the holder metadata from the lock file. Accepts
// the JSON format and a bare PID for forward compatibility with hand-
// written lock files.
func ReadLockInfo(dir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, SyncLockFileName)) // #nosec G304 -- path derives from the project directory
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err == nil {
		return &info, nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("unrecognized lock file format")
	}
	return &LockInfo{PID: pid}, nil
}

// Holder reports whether a live process currently holds the exclusive
// lock, and its PID when known. A lock file left behind by a dead
// process reports (false, 0): the flock died with the process.
func Holder(dir string) (bool, int) {
	f, err := openLockFile(dir)
	if err != nil {
		return false, 0
	}
	defer func() { _ = f.Close() }()

	if err := FlockSharedNonBlock(f); err == nil {
		_ = FlockUnlock(f)
		return false, 0
	} else if !errors.Is(err, ErrLockBusy) {
		return false, 0
	}

	// Exclusively locked by someone else; best-effort identity.
	info, err := ReadLockInfo(dir)
	if err != nil {
		return true, 0
	}
	if info.PID > 0 && !isProcessRunning(info.PID) {
		return true, 0
	}
	return true, info.PID
}
