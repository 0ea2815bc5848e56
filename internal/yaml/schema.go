package yaml

import (
	"errors"
	"fmt"

	yamlv3 "gopkg.in/yaml.v3"
)

// CurrentSchemaVersion is written into every file this package creates.
// Older versions are read as-is; newer ones are refused.
const CurrentSchemaVersion = 1

// FileTypeTaskQueue identifies the task store document.
const FileTypeTaskQueue = "task_queue"

// ErrBadHeader is wrapped by every header check failure.
var ErrBadHeader = errors.New("bad schema header")

// Header is the preamble shared by the store's YAML documents. The rest of
// the document is decoded by whoever owns the file type.
type Header struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
}

// ReadHeader decodes only the header fields of content.
func ReadHeader(content []byte) (Header, error) {
	var h Header
	if err := yamlv3.Unmarshal(content, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	return h, nil
}

// CheckHeader reports whether content declares fileType at a readable
// schema version.
func CheckHeader(content []byte, fileType string) error {
	h, err := ReadHeader(content)
	if err != nil {
		return err
	}
	switch {
	case h.SchemaVersion == 0:
		return fmt.Errorf("%w: schema_version is missing", ErrBadHeader)
	case h.SchemaVersion < 0 || h.SchemaVersion > CurrentSchemaVersion:
		return fmt.Errorf("%w: schema_version %d is not in 1..%d", ErrBadHeader, h.SchemaVersion, CurrentSchemaVersion)
	case h.FileType == "":
		return fmt.Errorf("%w: file_type is missing", ErrBadHeader)
	case h.FileType != fileType:
		return fmt.Errorf("%w: file_type %q, want %q", ErrBadHeader, h.FileType, fileType)
	}
	return nil
}
