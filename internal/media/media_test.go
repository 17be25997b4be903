package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o600))
	return p
}

func TestDirResolver(t *testing.T) {
	root := t.TempDir()
	exact := writeFile(t, root, "asset-1")
	withExt := writeFile(t, root, "asset-2.png")
	require.NoError(t, os.Mkdir(filepath.Join(root, "asset-3.d"), 0o700))

	r, err := NewDirResolver(root, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("resolves in order", func(t *testing.T) {
		paths, err := r.Resolve(ctx, []string{"asset-2", "asset-1"})
		require.NoError(t, err)
		assert.Equal(t, []string{withExt, exact}, paths)
	})

	t.Run("empty input", func(t *testing.T) {
		paths, err := r.Resolve(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, paths)
	})

	t.Run("missing asset", func(t *testing.T) {
		_, err := r.Resolve(ctx, []string{"asset-1", "nope"})
		assert.ErrorIs(t, err, ErrAssetNotFound)
	})

	t.Run("directories are not assets", func(t *testing.T) {
		_, err := r.Resolve(ctx, []string{"asset-3"})
		assert.ErrorIs(t, err, ErrAssetNotFound)
	})

	t.Run("path traversal is rejected", func(t *testing.T) {
		for _, id := range []string{"../etc/passwd", "..", "a/b", `a\b`, ""} {
			_, err := r.Resolve(ctx, []string{id})
			assert.ErrorIs(t, err, ErrInvalidAssetID, id)
		}
	})

	t.Run("glob characters match literally", func(t *testing.T) {
		_, err := r.Resolve(ctx, []string{"asset-*"})
		assert.ErrorIs(t, err, ErrAssetNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := r.Resolve(cctx, []string{"asset-1"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
