package fsops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScratchDir(t *testing.T) {
	fs := afero.NewMemMapFs()

	first, err := NewScratchDir(fs)
	require.NoError(t, err)
	second, err := NewScratchDir(fs)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each run gets its own directory")
	assert.Equal(t, os.TempDir(), filepath.Dir(first))
	assert.True(t, strings.HasPrefix(filepath.Base(first), ScratchPrefix))
	assert.True(t, Exists(fs, first))
}

func TestExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bundles/baseline.zip", []byte("PK"), 0644))

	assert.True(t, Exists(fs, "/bundles/baseline.zip"))
	assert.True(t, Exists(fs, "/bundles"))
	assert.False(t, Exists(fs, "/bundles/missing.zip"))
}

func TestCheckDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/apkaudit", 0755))
	require.NoError(t, afero.WriteFile(fs, "/data/history.db", []byte("x"), 0644))

	t.Run("writable directory", func(t *testing.T) {
		require.NoError(t, CheckDir(fs, "/data/apkaudit", false))

		left, err := afero.ReadDir(fs, "/data/apkaudit")
		require.NoError(t, err)
		assert.Empty(t, left, "probe file is removed")
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, CheckDir(fs, "/data/logs", false), ErrMissing)
		assert.False(t, Exists(fs, "/data/logs"))
	})

	t.Run("missing is created", func(t *testing.T) {
		require.NoError(t, CheckDir(fs, "/data/logs/nested", true))
		assert.True(t, Exists(fs, "/data/logs/nested"))
	})

	t.Run("file in the way", func(t *testing.T) {
		assert.ErrorIs(t, CheckDir(fs, "/data/history.db", true), ErrNotDir)
	})

	t.Run("read-only", func(t *testing.T) {
		err := CheckDir(afero.NewReadOnlyFs(fs), "/data/apkaudit", false)
		assert.ErrorContains(t, err, "not writable")
	})
}

func TestWriteFileAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := filepath.Join("/out", "nested", "baseline.json")

	require.NoError(t, WriteFileAtomic(fs, target, []byte(`[{"packageName":"a"}]`), 0644))
	require.NoError(t, WriteFileAtomic(fs, target, []byte(`[]`), 0600))

	content, err := afero.ReadFile(fs, target)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(content))

	info, err := fs.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := afero.ReadDir(fs, filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileAtomic_ReadOnly(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	assert.Error(t, WriteFileAtomic(fs, "/out/baseline.json", []byte("[]"), 0644))
}
