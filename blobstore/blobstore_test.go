package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"local":  local,
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := "index archive bytes"

			require.NoError(t, store.Put(ctx, "indexes/notes.tar.gz", strings.NewReader(payload), int64(len(payload))))

			exists, err := store.Exists(ctx, "indexes/notes.tar.gz")
			require.NoError(t, err)
			assert.True(t, exists)

			r, err := store.Get(ctx, "indexes/notes.tar.gz")
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, payload, string(got))
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			exists, err := store.Exists(context.Background(), "nope")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "k", strings.NewReader("v"), 1))
			require.NoError(t, store.Delete(ctx, "k"))

			exists, err := store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, exists)

			// Deleting a missing key is fine.
			assert.NoError(t, store.Delete(ctx, "k"))
		})
	}
}

func TestPutOverwrites(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "k", strings.NewReader("one"), 3))
			require.NoError(t, store.Put(ctx, "k", strings.NewReader("two"), 3))

			r, err := store.Get(ctx, "k")
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "two", string(got))
		})
	}
}

func TestLocalRejectsBadKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "/abs/path"} {
		err := store.Put(context.Background(), key, strings.NewReader("x"), 1)
		assert.Error(t, err, "key %q", key)
	}
}

func TestUploadDownloadDir(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "manifest.json"), []byte(`{"version":1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.graph"), []byte("graph"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "chunks.db"), []byte("chunks"), 0o644))

	require.NoError(t, UploadDir(ctx, store, "indexes/v1.tar.gz", src))

	dst := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, DownloadDir(ctx, store, "indexes/v1.tar.gz", dst))

	for _, name := range []string{"manifest.json", "index.graph", "chunks.db"} {
		want, err := os.ReadFile(filepath.Join(src, name))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dst, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestDownloadDirRefusesExistingTarget(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a"), []byte("a"), 0o644))
	require.NoError(t, UploadDir(ctx, store, "k", src))

	dst := t.TempDir() // already exists
	assert.Error(t, DownloadDir(ctx, store, "k", dst))
}

func TestDownloadDirMissingKey(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "restored")
	err := DownloadDir(context.Background(), NewMemory(), "missing", dst)
	assert.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}
