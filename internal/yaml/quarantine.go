package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// QuarantineDir is the subdirectory of the state dir holding corrupt files.
const QuarantineDir = "quarantine"

// Quarantine moves filePath into <stateDir>/quarantine with a timestamped
// ".corrupt" name and returns the new path.
func Quarantine(stateDir, filePath string) (string, error) {
	dir := filepath.Join(stateDir, QuarantineDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}
	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), time.Now().Format("20060102T150405.000"))
	dst := filepath.Join(dir, name)
	if err := os.Rename(filePath, dst); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	log.Warn("quarantined corrupted file", "path", filePath, "to", dst)
	return dst, nil
}

// RestoreFromBackup copies filePath's .bak over it, provided the backup is a
// valid document of fileType.
func RestoreFromBackup(filePath, fileType string) error {
	bak := BackupPath(filePath)
	content, err := os.ReadFile(bak)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := ValidateHeader(content, fileType); err != nil {
		return fmt.Errorf("backup is also corrupted: %w", err)
	}
	if err := AtomicWriteRaw(filePath, content); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	log.Info("restored from backup", "path", filePath)
	return nil
}

// RecoverCorruptedFile quarantines filePath and restores the last good
// version from its backup. When no usable backup exists the file stays in
// quarantine and the error says why.
func RecoverCorruptedFile(stateDir, filePath, fileType string) error {
	if _, err := Quarantine(stateDir, filePath); err != nil {
		return fmt.Errorf("quarantine failed: %w", err)
	}
	if err := RestoreFromBackup(filePath, fileType); err != nil {
		return fmt.Errorf("recover %s: %w", filepath.Base(filePath), err)
	}
	return nil
}
