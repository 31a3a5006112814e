package jardb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePathLock_SecondAcquireTimesOut(t *testing.T) {
	// Not t.Parallel(): mutates the package-level lockTimeout var, which
	// every other test's Open()/acquirePathLock() call also reads.

	dir := t.TempDir()
	path := filepath.Join(dir, "db.dump")

	first, err := acquirePathLock(path)
	require.NoError(t, err)

	defer first.release()

	original := lockTimeout
	lockTimeout = 20 * time.Millisecond

	defer func() { lockTimeout = original }()

	_, err = acquirePathLock(path)
	assert.ErrorIs(t, err, errLockTimeout)
}

func TestAcquirePathLock_ReleaseAllowsReacquire(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.dump")

	first, err := acquirePathLock(path)
	require.NoError(t, err)

	first.release()

	second, err := acquirePathLock(path)
	require.NoError(t, err)

	second.release()
}
