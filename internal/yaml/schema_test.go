package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Header `yaml:",inline"`
	Title  string `yaml:"title"`
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr string
	}{
		{"valid", "schema_version: 1\nfile_type: task\n", FileTypeTask, ""},
		{"any type", "schema_version: 1\nfile_type: task\n", "", ""},
		{"zero version", "schema_version: 0\nfile_type: task\n", "", "invalid schema_version"},
		{"future version", "schema_version: 9\nfile_type: task\n", "", "unsupported schema_version"},
		{"missing type", "schema_version: 1\n", "", "missing file_type"},
		{"unknown type", "schema_version: 1\nfile_type: queue\n", "", "unknown file_type"},
		{"broken yaml", "schema_version: [\n", "", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader([]byte(tt.content), tt.want)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.yaml")
	require.NoError(t, AtomicWrite(path, doc{Header: NewHeader(FileTypeTask), Title: "hello"}))

	var got doc
	require.NoError(t, ReadDocument(path, FileTypeTask, &got))
	assert.Equal(t, "hello", got.Title)
	assert.Equal(t, CurrentSchemaVersion, got.SchemaVersion)

	require.NoError(t, os.WriteFile(path, []byte("title: no header\n"), 0644))
	assert.ErrorIs(t, ReadDocument(path, FileTypeTask, &got), ErrCorrupt)

	err := ReadDocument(filepath.Join(dir, "missing.yaml"), FileTypeTask, &got)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
