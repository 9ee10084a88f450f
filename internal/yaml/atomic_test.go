package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yamlv3 "gopkg.in/yaml.v3"
)

func TestAtomicWrite_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.yaml")

	require.NoError(t, AtomicWrite(path, map[string]any{"key": "value", "count": 42}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, yamlv3.Unmarshal(content, &got))
	assert.Equal(t, "value", got["key"])
	assert.Equal(t, 42, got["count"])
}

func TestAtomicWrite_KeepsPreviousAsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.yaml")
	require.NoError(t, AtomicWrite(path, map[string]string{"version": "1"}))
	require.NoError(t, AtomicWrite(path, map[string]string{"version": "2"}))

	bak, err := os.ReadFile(BackupPath(path))
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, yamlv3.Unmarshal(bak, &got))
	assert.Equal(t, "1", got["version"])
}

func TestAtomicWriteRaw_RejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ok: true\n"), 0644))

	err := AtomicWriteRaw(path, []byte("broken: [\n"))
	require.Error(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ok: true\n", string(content), "original must survive a failed write")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}
