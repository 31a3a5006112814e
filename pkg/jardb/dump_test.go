package jardb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P7 (dump round-trip) / Scenario 4.
func TestDump_SaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	opts := DefaultOptions(dir, "db")
	opts.FeatureSet = 0
	opts.Diag = NewDiscardDiag()

	db, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, db.Put([]byte("x"), []byte("x's value")))
	require.NoError(t, db.Put([]byte("y"), []byte("another value")))
	require.NoError(t, db.Save())
	require.NoError(t, db.Close())

	freshOpts := DefaultOptions(t.TempDir(), "db2")
	freshOpts.FeatureSet = 0
	freshOpts.Diag = NewDiscardDiag()

	fresh, err := Open(freshOpts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = fresh.Close() })

	require.NoError(t, fresh.Load(filepath.Join(dir, "db.dump")))

	v, err := fresh.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x's value", string(v))

	v, err = fresh.Get([]byte("y"))
	require.NoError(t, err)
	assert.Equal(t, "another value", string(v))

	ct, err := fresh.ContentType([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, defaultContentType, ct, "content type resets to default on reload")
}

func TestLoad_RejectsBadMagicAndChecksum(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.dump")

	require.NoError(t, os.WriteFile(path, []byte("not a dump file at all"), 0o644))

	db := openTestDB(t, 0)
	err := db.Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsTamperedChecksum(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	opts := DefaultOptions(dir, "db")
	opts.FeatureSet = 0
	opts.Diag = NewDiscardDiag()

	src, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, src.Put([]byte("k"), []byte("v")))
	require.NoError(t, src.Save())
	require.NoError(t, src.Close())

	path := filepath.Join(dir, "db.dump")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	raw[len(DumpSig)+2] ^= 0xFF // corrupt a byte inside the body, after the footer is computed
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	dst := openTestDB(t, 0)
	assert.ErrorIs(t, dst.Load(path), ErrChecksumMismatch)
}

func TestBackgroundSave_ExcludesMutationsAfterCapture(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	opts := DefaultOptions(dir, "db")
	opts.FeatureSet = 0
	opts.Diag = NewDiscardDiag()

	db, err := Open(opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Put([]byte("before"), []byte("v1")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := db.BackgroundSave(ctx)

	require.NoError(t, db.Put([]byte("after"), []byte("v2")))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("background save did not complete in time")
	}

	freshOpts := DefaultOptions(t.TempDir(), "db2")
	freshOpts.FeatureSet = 0
	freshOpts.Diag = NewDiscardDiag()

	fresh, err := Open(freshOpts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = fresh.Close() })

	require.NoError(t, fresh.Load(filepath.Join(dir, "db.dump")))

	_, err = fresh.Get([]byte("before"))
	require.NoError(t, err)

	_, err = fresh.Get([]byte("after"))
	assert.ErrorIs(t, err, ErrNotFound, "mutations applied after the capture must not appear in the snapshot")
}

func TestEncodeDumpRecords_ZeroesKeyBlockTail(t *testing.T) {
	t.Parallel()

	buf, err := encodeDumpRecords([]dumpRecord{{key: []byte("ab"), data: []byte("v")}})
	require.NoError(t, err)

	headerLen := len(DumpSig) + 4 + 8
	keyBlock := buf[headerLen : headerLen+KeySize]

	assert.Equal(t, byte('a'), keyBlock[0])
	assert.Equal(t, byte('b'), keyBlock[1])

	for _, b := range keyBlock[2:] {
		assert.Equal(t, byte(0), b, "OQ1: tail of the key block past klen must be zeroed")
	}
}
