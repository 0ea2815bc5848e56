package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Wbcubazo/Multiday-mini/internal/lock"
	yamlutil "github.com/Wbcubazo/Multiday-mini/internal/yaml"
)

// Sink persists artifacts. Implementations must keep each task's artifacts
// apart so one task can never overwrite another's output.
type Sink interface {
	Write(taskID, name string, content any) error
	Read(taskID, name string) (any, error)
}

// WriteSet writes every artifact of set and returns the names written so far.
// It stops at the first failure.
func WriteSet(sink Sink, taskID string, set Set) ([]string, error) {
	written := make([]string, 0, len(set))
	for _, a := range set {
		if err := sink.Write(taskID, a.Name, a.Content); err != nil {
			return written, fmt.Errorf("write artifact %s: %w", a.Name, err)
		}
		written = append(written, a.Name)
	}
	return written, nil
}

// FileSink stores artifacts as <root>/<task_id>/<name>. Each task directory
// also holds a manifest recording how every artifact was encoded, so Read
// can tell structured values from text regardless of the artifact name.
type FileSink struct {
	root  string
	locks *lock.MutexMap
}

const manifestName = ".manifest.yaml"

// Encoding formats recorded in the manifest.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type manifest struct {
	Artifacts map[string]string `yaml:"artifacts"`
}

func NewFileSink(root string) *FileSink {
	return &FileSink{root: root, locks: lock.NewMutexMap()}
}

func (s *FileSink) Root() string { return s.root }

// Path returns where an artifact of taskID would be stored.
func (s *FileSink) Path(taskID, name string) (string, error) {
	if err := ValidateName(taskID); err != nil {
		return "", fmt.Errorf("task id: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if name == manifestName {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return filepath.Join(s.root, taskID, name), nil
}

// Write encodes content and replaces the artifact file atomically. Text and
// other scalars are written verbatim. Structured values become YAML for
// .yaml/.yml names and indented JSON otherwise.
func (s *FileSink) Write(taskID, name string, content any) error {
	path, err := s.Path(taskID, name)
	if err != nil {
		return err
	}
	data, format, err := encode(name, content)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.locks.WithLock(taskID, func() error {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create task dir: %w", err)
		}
		m, err := readManifest(dir)
		if err != nil {
			return err
		}
		if err := yamlutil.AtomicWriteFile(path, data); err != nil {
			return err
		}
		m.Artifacts[name] = format
		return writeManifest(dir, m)
	})
}

// Read loads an artifact. Structured artifacts decode into map[string]any,
// []any and scalars, with integers kept as int; text comes back as a string.
// Files the manifest does not know are decoded by extension.
func (s *FileSink) Read(taskID, name string) (any, error) {
	var v any
	text, err := s.read(taskID, name, &v)
	if err != nil {
		return nil, err
	}
	if text != nil {
		return *text, nil
	}
	return v, nil
}

// ReadInto decodes a structured artifact into out, which must be a pointer.
// It restores concrete Go types that Read would return generically.
func (s *FileSink) ReadInto(taskID, name string, out any) error {
	text, err := s.read(taskID, name, out)
	if err != nil {
		return err
	}
	if text != nil {
		return fmt.Errorf("artifact %s is text, not structured", name)
	}
	return nil
}

// read decodes into out, or returns the content as text when the artifact
// is not structured.
func (s *FileSink) read(taskID, name string, out any) (*string, error) {
	path, err := s.Path(taskID, name)
	if err != nil {
		return nil, err
	}

	var (
		format string
		data   []byte
	)
	err = s.locks.WithLock(taskID, func() error {
		m, err := readManifest(filepath.Dir(path))
		if err != nil {
			return err
		}
		format = m.Artifacts[name]
		data, err = os.ReadFile(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = formatFromExt(name)
	}
	if format == FormatText {
		text := string(data)
		return &text, nil
	}
	// JSON is a subset of YAML, and yaml.v3 keeps integers as int.
	if err := yamlv3.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return nil, nil
}

// List returns the artifact names stored for taskID.
func (s *FileSink) List(taskID string) ([]string, error) {
	if err := ValidateName(taskID); err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	entries, err := os.ReadDir(filepath.Join(s.root, taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == manifestName || strings.HasPrefix(e.Name(), ".multiday-tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func readManifest(dir string) (manifest, error) {
	m := manifest{Artifacts: map[string]string{}}
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yamlv3.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Artifacts == nil {
		m.Artifacts = map[string]string{}
	}
	return m, nil
}

func writeManifest(dir string, m manifest) error {
	data, err := yamlv3.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return yamlutil.AtomicWriteFile(filepath.Join(dir, manifestName), data)
}

func encode(name string, content any) ([]byte, string, error) {
	switch v := content.(type) {
	case nil:
		return []byte{}, FormatText, nil
	case string:
		return []byte(v), FormatText, nil
	case []byte:
		return v, FormatText, nil
	case fmt.Stringer:
		return []byte(v.String()), FormatText, nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return []byte(fmt.Sprint(v)), FormatText, nil
	}

	if formatFromExt(name) == FormatYAML {
		data, err := yamlv3.Marshal(content)
		return data, FormatYAML, err
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return append(data, '\n'), FormatJSON, nil
}

func formatFromExt(name string) string {
	switch ext(name) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

func ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
