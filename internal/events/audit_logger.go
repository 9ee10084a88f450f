package events

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxLogSize = 50 * 1024 * 1024
	LogFileExtension  = ".jsonl"
	ArchiveDir        = "archive"
)

// LogEntry is one line of the audit log.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Checksum  string         `json:"checksum,omitempty"`
}

// AuditLogger appends JSONL entries and rotates the file into archive/ when
// it would exceed maxSize.
type AuditLogger struct {
	mu        sync.Mutex
	file      *os.File
	size      int64
	maxSize   int64
	path      string
	checksums bool
	rotations int
}

func NewAuditLogger(path string, maxSize int64) (*AuditLogger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	l := &AuditLogger{path: path, maxSize: maxSize}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = f
	l.size = st.Size()
	return nil
}

// EnableChecksum stamps each entry with a sha256 of its content.
func (l *AuditLogger) EnableChecksum(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checksums = enable
}

// Record writes ev as an audit entry. It is a bus Subscriber.
func (l *AuditLogger) Record(ev Event) {
	_ = l.WriteEntry(&LogEntry{
		Timestamp: ev.Timestamp,
		EventType: string(ev.Type),
		EventID:   ev.ID,
		TaskID:    ev.TaskID,
		Details:   ev.Data,
	})
}

func (l *AuditLogger) WriteEntry(entry *LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log closed")
	}
	if l.checksums {
		sum, err := checksum(entry)
		if err != nil {
			return err
		}
		entry.Checksum = sum
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	if l.size > 0 && l.size+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}
	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	l.size += int64(n)
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	archive := filepath.Join(filepath.Dir(l.path), ArchiveDir)
	if err := os.MkdirAll(archive, 0755); err != nil {
		return err
	}
	l.rotations++
	base := strings.TrimSuffix(filepath.Base(l.path), LogFileExtension)
	name := fmt.Sprintf("%s.%s.%d%s", base, time.Now().Format("20060102_150405"), l.rotations, LogFileExtension)
	if err := os.Rename(l.path, filepath.Join(archive, name)); err != nil {
		return err
	}
	return l.open()
}

func checksum(entry *LogEntry) (string, error) {
	cp := *entry
	cp.Checksum = ""
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("checksum audit entry: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyLogIntegrity counts the entries in a log and how many pass their
// checksum. Entries without a checksum count as valid; malformed lines count
// as invalid.
func VerifyLogIntegrity(path string) (total, valid int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		total++
		var entry LogEntry
		if json.Unmarshal(line, &entry) != nil {
			continue
		}
		if entry.Checksum == "" {
			valid++
			continue
		}
		want := entry.Checksum
		// Round-tripping through JSON turns numbers into float64, which
		// re-marshals identically for the values we write.
		if got, err := checksum(&entry); err == nil && got == want {
			valid++
		}
	}
	return total, valid, sc.Err()
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Sync()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}

func (l *AuditLogger) Path() string { return l.path }
