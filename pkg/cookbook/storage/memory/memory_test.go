package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
	"github.com/tendant/simple-cookbook/pkg/cookbook/storage/memory"
)

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	err := backend.Upload(ctx, "artifacts/abc", strings.NewReader("tarball bytes"))
	require.NoError(t, err)

	rc, err := backend.Download(ctx, "artifacts/abc")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "tarball bytes", string(data))

	meta, err := backend.GetObjectMeta(ctx, "artifacts/abc")
	require.NoError(t, err)
	assert.Equal(t, int64(len("tarball bytes")), meta.Size)
}

func TestDownloadMissing(t *testing.T) {
	backend := memory.New()

	_, err := backend.Download(context.Background(), "artifacts/missing")
	assert.ErrorIs(t, err, cookbook.ErrArtifactNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	require.NoError(t, backend.Upload(ctx, "artifacts/abc", strings.NewReader("x")))
	require.NoError(t, backend.Delete(ctx, "artifacts/abc"))

	_, err := backend.Download(ctx, "artifacts/abc")
	assert.ErrorIs(t, err, cookbook.ErrArtifactNotFound)

	assert.ErrorIs(t, backend.Delete(ctx, "artifacts/abc"), cookbook.ErrArtifactNotFound)
}
