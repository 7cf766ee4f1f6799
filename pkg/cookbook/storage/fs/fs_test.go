package fs_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
	"github.com/tendant/simple-cookbook/pkg/cookbook/storage/fs"
)

func TestFilesystemBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	t.Run("upload and download", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, "artifacts/a/b", strings.NewReader("content")))

		rc, err := backend.Download(ctx, "artifacts/a/b")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	})

	t.Run("object meta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, "artifacts/a/b")
		require.NoError(t, err)
		assert.Equal(t, int64(len("content")), meta.Size)
	})

	t.Run("delete removes object", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, "artifacts/a/b"))

		_, err := backend.Download(ctx, "artifacts/a/b")
		assert.ErrorIs(t, err, cookbook.ErrArtifactNotFound)
	})

	t.Run("download url requires prefix", func(t *testing.T) {
		_, err := backend.GetDownloadURL(ctx, "artifacts/a/b", "")
		assert.Error(t, err)
	})
}

func TestFilesystemBackendRequiresBaseDir(t *testing.T) {
	_, err := fs.New(fs.Config{})
	assert.Error(t, err)
}
