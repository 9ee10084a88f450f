package yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarantine(t *testing.T) {
	stateDir := t.TempDir()
	path := filepath.Join(stateDir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broken: [\n"), 0644))

	dst, err := Quarantine(stateDir, path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, filepath.Join(stateDir, QuarantineDir), filepath.Dir(dst))
	base := filepath.Base(dst)
	assert.True(t, strings.HasPrefix(base, "broken.yaml.") && strings.HasSuffix(base, ".corrupt"), base)
}

func TestRecoverCorruptedFile_FromBackup(t *testing.T) {
	stateDir := t.TempDir()
	path := filepath.Join(stateDir, "tasks", "t.yaml")
	require.NoError(t, AtomicWrite(path, doc{Header: NewHeader(FileTypeTask), Title: "v1"}))
	require.NoError(t, AtomicWrite(path, doc{Header: NewHeader(FileTypeTask), Title: "v2"}))
	require.NoError(t, os.WriteFile(path, []byte("title: [\n"), 0644))

	require.NoError(t, RecoverCorruptedFile(stateDir, path, FileTypeTask))

	var got doc
	require.NoError(t, ReadDocument(path, FileTypeTask, &got))
	assert.Equal(t, "v1", got.Title)

	entries, err := os.ReadDir(filepath.Join(stateDir, QuarantineDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecoverCorruptedFile_NoBackup(t *testing.T) {
	stateDir := t.TempDir()
	path := filepath.Join(stateDir, "t.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: [\n"), 0644))

	err := RecoverCorruptedFile(stateDir, path, FileTypeTask)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read backup")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRestoreFromBackup_CorruptBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.yaml")
	require.NoError(t, os.WriteFile(BackupPath(path), []byte("schema_version: 1\nfile_type: other\n"), 0644))

	err := RestoreFromBackup(path, FileTypeTask)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup is also corrupted")
}
