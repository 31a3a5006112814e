package jardb

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// lockTimeout bounds how long Open waits for the advisory lock on a
// database path before giving up. A var, not a const, so tests can shrink
// it instead of sleeping out a real five-second wait.
var lockTimeout = 5 * time.Second

var (
	errLockTimeout  = errors.New("jardb: lock timeout")
	errLockFileOpen = errors.New("jardb: failed to open lock file")
)

// pathLock is an advisory guard against two processes opening the same
// database path concurrently. It is a defensive backstop, not a substitute
// for the caller's own external serialization of operations on one handle:
// the store itself has no internal mutex (§5 of the concurrency model).
type pathLock struct {
	file *os.File
}

// acquirePathLock takes an exclusive, non-blocking flock on "<path>.lock",
// retrying until lockTimeout elapses.
func acquirePathLock(path string) (*pathLock, error) {
	lockPath := path + ".lock"

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errLockFileOpen, err)
	}

	deadline := time.Now().Add(lockTimeout)
	const retryInterval = 10 * time.Millisecond

	for {
		flockErr := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if flockErr == nil {
			return &pathLock{file: file}, nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s", errLockTimeout, path)
		}

		time.Sleep(retryInterval)
	}
}

// release drops the lock and closes the underlying file descriptor.
func (l *pathLock) release() {
	if l.file != nil {
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
	}
}
