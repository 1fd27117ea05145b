package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir, LockInfo{Origin: "peer-a", Database: "tandem.db"}, false)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	info, err := ReadLockInfo(dir)
	if err != nil {
		t.Fatalf("ReadLockInfo failed: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("lock PID = %d, want %d", info.PID, os.Getpid())
	}
	if info.Origin != "peer-a" {
		t.Errorf("lock origin = %q", info.Origin)
	}
	if info.StartedAt.IsZero() {
		t.Error("StartedAt not stamped")
	}

	lock.Release()

	// Reacquirable after release.
	lock2, err := Acquire(dir, LockInfo{}, false)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	lock2.Release()
}

func TestAcquireContended(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir, LockInfo{}, false)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	// A second handle in the same process still contends: flock is
	// per-descriptor, not per-process.
	f, err := openLockFile(dir)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	defer func() { _ = f.Close() }()

	if err := FlockExclusiveNonBlock(f); !errors.Is(err, ErrLockBusy) {
		t.Errorf("second exclusive lock error = %v, want ErrLockBusy", err)
	}
	if err := FlockSharedNonBlock(f); !errors.Is(err, ErrLockBusy) {
		t.Errorf("shared lock under exclusive error = %v, want ErrLockBusy", err)
	}
}

func TestSharedLocksCoexist(t *testing.T) {
	dir := t.TempDir()

	a, err := AcquireShared(dir)
	if err != nil {
		t.Fatalf("first shared lock: %v", err)
	}
	defer a.Release()

	b, err := AcquireShared(dir)
	if err != nil {
		t.Fatalf("second shared lock: %v", err)
	}
	b.Release()

	// Exclusive is blocked while a shared lock remains.
	f, err := openLockFile(dir)
	if err != nil {
		t.Fatalf("open handle: %v", err)
	}
	defer func() { _ = f.Close() }()
	if err := FlockExclusiveNonBlock(f); !errors.Is(err, ErrLockBusy) {
		t.Errorf("exclusive under shared error = %v, want ErrLockBusy", err)
	}
}

func TestHolder(t *testing.T) {
	dir := t.TempDir()

	if running, pid := Holder(dir); running || pid != 0 {
		t.Errorf("Holder on unlocked dir = (%v, %d)", running, pid)
	}

	lock, err := Acquire(dir, LockInfo{}, false)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	running, pid := Holder(dir)
	if !running {
		t.Error("Holder did not see the held lock")
	}
	if pid != os.Getpid() {
		t.Errorf("Holder pid = %d, want %d", pid, os.Getpid())
	}
	lock.Release()

	if running, _ := Holder(dir); running {
		t.Error("Holder still sees a lock after release")
	}
}

func TestReadLockInfoFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SyncLockFileName)

	info := LockInfo{PID: 12345, Database: "tandem.db", StartedAt: time.Now()}
	data, _ := json.Marshal(info)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write lock file: %v", err)
	}
	got, err := ReadLockInfo(dir)
	if err != nil {
		t.Fatalf("ReadLockInfo failed: %v", err)
	}
	if got.PID != 12345 || got.Database != "tandem.db" {
		t.Errorf("lock info = %+v", got)
	}

	// Bare PID.
	if err := os.WriteFile(path, []byte(strconv.Itoa(98765)), 0o600); err != nil {
		t.Fatalf("write lock file: %v", err)
	}
	got, err = ReadLockInfo(dir)
	if err != nil {
		t.Fatalf("ReadLockInfo failed: %v", err)
	}
	if got.PID != 98765 {
		t.Errorf("bare PID read as %d", got.PID)
	}

	// Garbage.
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("write lock file: %v", err)
	}
	if _, err := ReadLockInfo(dir); err == nil {
		t.Error("garbage lock file accepted")
	}

	// Missing.
	if _, err := ReadLockInfo(t.TempDir()); err == nil {
		t.Error("missing lock file accepted")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process reported not running")
	}
	if isProcessRunning(0) {
		t.Error("pid 0 reported running")
	}
	if isProcessRunning(999999) {
		t.Error("unlikely pid reported running")
	}
}
