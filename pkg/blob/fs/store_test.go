package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muika-lab/memekeeper/pkg/blob"
	"github.com/muika-lab/memekeeper/pkg/blob/fs"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := fs.NewStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("image-bytes")

	ref, err := store.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, blob.Digest(data), ref, "the reference is the content digest")

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutIsIdempotent(t *testing.T) {
	store, err := fs.NewStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ref1, err := store.Put(ctx, []byte("same"))
	require.NoError(t, err)
	ref2, err := store.Put(ctx, []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
}

func TestPutEmptyBlob(t *testing.T) {
	store, err := fs.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), nil)
	require.Error(t, err)
}

func TestExistsAndRemove(t *testing.T) {
	store, err := fs.NewStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ref, err := store.Put(ctx, []byte("bytes"))
	require.NoError(t, err)

	exists, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Remove(ctx, ref))

	exists, err = store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, exists)

	// Removing again is not an error.
	assert.NoError(t, store.Remove(ctx, ref))
}

func TestGetMissingRef(t *testing.T) {
	store, err := fs.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), blob.Digest([]byte("never stored")))
	require.Error(t, err)
}

func TestRejectsMalformedRefs(t *testing.T) {
	store, err := fs.NewStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	for _, ref := range []string{"", "ab", "../escape", "a/b", `a\b`, "a.b."} {
		_, err := store.Get(ctx, ref)
		assert.Error(t, err, "ref %q must be rejected", ref)
	}
}

func TestFanOutLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := fs.NewStore(dir)
	require.NoError(t, err)

	data := []byte("layout")
	ref, err := store.Put(context.Background(), data)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, ref[:2], ref))
	assert.NoError(t, err, "blob must live under its two-character fan-out directory")
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "blobs")
	_, err := fs.NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewStoreEmptyDir(t *testing.T) {
	_, err := fs.NewStore("")
	require.Error(t, err)
}
