package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, path string) []LogEntry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []LogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	return out
}

func TestAuditLogger_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	l, err := NewAuditLogger(path, 0)
	require.NoError(t, err)

	l.Record(Event{ID: "evt_1", Type: EventTaskCreated, TaskID: "task_1", Timestamp: time.Now().UTC(), Data: map[string]any{"title": "x"}})
	l.Record(Event{ID: "evt_2", Type: EventStatusChanged, TaskID: "task_1", Timestamp: time.Now().UTC()})
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "task_created", entries[0].EventType)
	assert.Equal(t, "task_1", entries[0].TaskID)
	assert.Equal(t, "x", entries[0].Details["title"])
}

func TestAuditLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := NewAuditLogger(path, 200)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.WriteEntry(&LogEntry{
			Timestamp: time.Now().UTC(),
			EventType: "execution_step",
			Details:   map[string]any{"message": "Completed todo number something long"},
		}))
	}

	archived, err := os.ReadDir(filepath.Join(dir, ArchiveDir))
	require.NoError(t, err)
	assert.NotEmpty(t, archived)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(200))
}

func TestAuditLogger_Checksums(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewAuditLogger(path, 0)
	require.NoError(t, err)
	l.EnableChecksum(true)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.WriteEntry(&LogEntry{
			Timestamp: time.Now().UTC(),
			EventType: "todos_updated",
			TaskID:    "task_1",
			Details:   map[string]any{"updated": i, "ratio": 0.5},
		}))
	}
	require.NoError(t, l.Close())

	total, valid, err := VerifyLogIntegrity(path)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, valid)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"event_type":"forged","checksum":"deadbeef"}` + "\n" + "not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	total, valid, err = VerifyLogIntegrity(path)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, valid)
}

func TestAuditLogger_WriteAfterClose(t *testing.T) {
	l, err := NewAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"), 0)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.Error(t, l.WriteEntry(&LogEntry{EventType: "x"}))
	assert.NoError(t, l.Close())
}
