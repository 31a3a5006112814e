package jardb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBucket_DefaultsContentType(t *testing.T) {
	t.Parallel()

	k := truncateKey([]byte("k"))
	b := newBucket(k, fingerprint(k), []byte("v"), "")

	assert.Equal(t, defaultContentType, b.contentType)
	assert.Equal(t, "v", string(b.data))
	assert.Equal(t, 1, b.klen)
}

func TestBucket_Upsert_KeepsKeyAndHashRefreshesKlen(t *testing.T) {
	t.Parallel()

	k := truncateKey([]byte("k"))
	h := fingerprint(k)
	b := newBucket(k, h, []byte("v1"), "")

	b.upsert(k, []byte("v2-longer"), "text/plain")

	require.Equal(t, h, b.hash, "upsert must not rewrite hash")
	require.Equal(t, k, b.key, "upsert must not rewrite key")
	assert.Equal(t, "v2-longer", string(b.data))
	assert.Equal(t, "text/plain", b.contentType)
	assert.Equal(t, len(k), b.klen)
}

func TestBucket_Matches(t *testing.T) {
	t.Parallel()

	k := truncateKey([]byte("hello"))
	b := newBucket(k, fingerprint(k), []byte("v"), "")

	assert.True(t, b.matches(k))
	assert.False(t, b.matches(truncateKey([]byte("hell"))))
	assert.False(t, b.matches(truncateKey([]byte("hellox"))))
}
