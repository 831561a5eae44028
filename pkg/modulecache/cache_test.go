package modulecache

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t)

	source := []byte("__kernel void add(__global float* a) { a[get_global_id(0)] += 1; }")
	entry, err := c.Put(source, "add", "/kernels/add.cl")
	require.NoError(t, err)

	got, body, err := c.Get(entry.Digest)
	require.NoError(t, err)
	assert.Equal(t, "add", got.EntryName)
	assert.Equal(t, "/kernels/add.cl", got.SourcePath)
	assert.Equal(t, source, body)
}

func TestGetMissingDigestReturnsKeyNotFound(t *testing.T) {
	c := newTestCache(t)
	digest := Digest([]byte("never stored"))

	_, _, err := c.Get(digest)
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestHas(t *testing.T) {
	c := newTestCache(t)
	source := []byte("kernel body")

	digest := Digest(source)
	assert.False(t, c.Has(digest))

	_, err := c.Put(source, "entry", "path.cl")
	require.NoError(t, err)
	assert.True(t, c.Has(digest))
}

func TestIdenticalContentSharesDigest(t *testing.T) {
	a := Digest([]byte("same bytes"))
	b := Digest([]byte("same bytes"))
	assert.Equal(t, a, b)

	c := Digest([]byte("different bytes"))
	assert.NotEqual(t, a, c)
}
