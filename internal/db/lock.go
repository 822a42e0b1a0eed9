package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	leaseFileName  = "flush.lock"
	initialBackoff = 5 * time.Millisecond
	maxBackoff     = 50 * time.Millisecond
)

// ErrLeaseHeld is returned when another process is already flushing this store.
var ErrLeaseHeld = errors.New("flush lease held by another process")

// Lease is a held flush lease. Release is safe to call more than once.
type Lease interface {
	Release() error
}

type noopLease struct{}

func (noopLease) Release() error { return nil }

// TryFlushLease takes the cross-process flush lease for this store, waiting
// at most timeout. Two processes (tabs, kiosks, a CLI next to a daemon)
// sharing one data directory never flush the same records concurrently.
// Stores without a directory get a no-op lease.
func (db *DB) TryFlushLease(timeout time.Duration) (Lease, error) {
	if db.baseDir == "" {
		return noopLease{}, nil
	}
	locker := newLeaseLocker(db.baseDir)
	if err := locker.acquire(timeout); err != nil {
		return nil, err
	}
	return locker, nil
}

// leaseLocker manages exclusive flush access using OS file locks.
// The lock is automatically released when the process exits (including crashes).
type leaseLocker struct {
	lockPath string
	lockFile *os.File
}

func newLeaseLocker(baseDir string) *leaseLocker {
	return &leaseLocker{
		lockPath: filepath.Join(baseDir, dataDir, leaseFileName),
	}
}

// acquire attempts to get the exclusive lease within timeout. A zero timeout
// makes exactly one attempt.
func (l *leaseLocker) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lease file: %w", err)
	}
	l.lockFile = f

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for {
		if err := lockFile(l.lockFile); err == nil {
			l.writeHolder()
			return nil
		}

		if !time.Now().Before(deadline) {
			holder := l.readHolder()
			l.lockFile.Close()
			l.lockFile = nil
			return fmt.Errorf("%w (holder: %s)", ErrLeaseHeld, holder)
		}

		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Release releases the lease.
func (l *leaseLocker) Release() error {
	if l.lockFile == nil {
		return nil
	}

	l.lockFile.Truncate(0)
	unlockFile(l.lockFile)
	err := l.lockFile.Close()
	l.lockFile = nil
	return err
}

// writeHolder writes current process info to the lease file for diagnostics.
func (l *leaseLocker) writeHolder() {
	if l.lockFile == nil {
		return
	}
	l.lockFile.Truncate(0)
	l.lockFile.Seek(0, 0)
	fmt.Fprintf(l.lockFile, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.lockFile.Sync()
}

// readHolder reads the current holder info from the lease file.
func (l *leaseLocker) readHolder() string {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return "unknown"
	}

	var pid, timestamp string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.HasPrefix(line, "pid:") {
			pid = strings.TrimPrefix(line, "pid:")
		} else if strings.HasPrefix(line, "time:") {
			timestamp = strings.TrimPrefix(line, "time:")
		}
	}
	if pid == "" {
		return "unknown"
	}

	pidInt, err := strconv.Atoi(pid)
	if err == nil && !holderAlive(pidInt) {
		return fmt.Sprintf("pid:%s since %s (STALE - process dead)", pid, timestamp)
	}
	return fmt.Sprintf("pid:%s since %s", pid, timestamp)
}
