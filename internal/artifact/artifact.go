// Package artifact normalizes capability results into named artifacts and
// persists them under a per-task namespace.
package artifact

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultName is used when a capability returns a single non-mapping value.
const DefaultName = "output.txt"

var ErrInvalidName = errors.New("invalid artifact name")

// Artifact is one named output. Content is kept as returned (text or a
// structured value) and only serialized by a Sink.
type Artifact struct {
	Name    string
	Content any
}

// Set is an ordered collection of artifacts with unique names.
type Set []Artifact

func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, a := range s {
		names[i] = a.Name
	}
	return names
}

// Normalize converts a capability result into a Set. Mappings keyed by
// string become one artifact per key in name order; a Set is kept as is;
// nil yields an empty Set; any other value becomes a single DefaultName
// artifact.
func Normalize(result any) (Set, error) {
	var set Set
	switch v := result.(type) {
	case nil:
		return Set{}, nil
	case Set:
		set = append(Set(nil), v...)
	case []Artifact:
		set = append(Set(nil), v...)
	case map[string]any:
		for _, name := range sortedKeys(v) {
			set = append(set, Artifact{Name: name, Content: v[name]})
		}
	case map[string]string:
		for _, name := range sortedKeys(v) {
			set = append(set, Artifact{Name: name, Content: v[name]})
		}
	case map[string][]byte:
		for _, name := range sortedKeys(v) {
			set = append(set, Artifact{Name: name, Content: v[name]})
		}
	default:
		set = Set{{Name: DefaultName, Content: v}}
	}

	seen := make(map[string]bool, len(set))
	for _, a := range set {
		if err := ValidateName(a.Name); err != nil {
			return nil, err
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: duplicate %q", ErrInvalidName, a.Name)
		}
		seen[a.Name] = true
	}
	return set, nil
}

// ValidateName rejects names that would escape the task's directory.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q contains a parent reference", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || filepath.IsAbs(name):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidName, name)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
