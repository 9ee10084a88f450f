package yaml

import (
	"errors"
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"
)

const CurrentSchemaVersion = 1

// File types stored under .taskvibe.
const (
	FileTypeTask = "task"
)

var validFileTypes = map[string]bool{
	FileTypeTask: true,
}

// ErrCorrupt marks a document that cannot be parsed or carries a bad header.
var ErrCorrupt = errors.New("corrupt document")

// Header leads every versioned document. Embed it inline in document structs.
type Header struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
}

func NewHeader(fileType string) Header {
	return Header{SchemaVersion: CurrentSchemaVersion, FileType: fileType}
}

// ValidateHeader checks the header of content. An empty expectedFileType
// accepts any known type.
func ValidateHeader(content []byte, expectedFileType string) error {
	var h Header
	if err := yamlv3.Unmarshal(content, &h); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	switch {
	case h.SchemaVersion < 1:
		return fmt.Errorf("invalid schema_version %d (must be >= 1)", h.SchemaVersion)
	case h.SchemaVersion > CurrentSchemaVersion:
		return fmt.Errorf("unsupported schema_version %d (max supported: %d)", h.SchemaVersion, CurrentSchemaVersion)
	case h.FileType == "":
		return errors.New("missing file_type")
	case !validFileTypes[h.FileType]:
		return fmt.Errorf("unknown file_type: %q", h.FileType)
	case expectedFileType != "" && h.FileType != expectedFileType:
		return fmt.Errorf("file_type mismatch: got %q, expected %q", h.FileType, expectedFileType)
	}
	return nil
}

// ReadDocument loads path into out after checking its header. Parse and
// header problems wrap ErrCorrupt; a missing file returns the os error.
func ReadDocument(path, fileType string, out any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return DecodeDocument(content, fileType, out)
}

func DecodeDocument(content []byte, fileType string, out any) error {
	if err := ValidateHeader(content, fileType); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := yamlv3.Unmarshal(content, out); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
