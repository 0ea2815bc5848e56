package artifact

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type label struct{ s string }

func (l label) String() string { return "label:" + l.s }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   Set
	}{
		{"nil", nil, Set{}},
		{"text", "raw text", Set{{Name: DefaultName, Content: "raw text"}}},
		{"bytes", []byte("b"), Set{{Name: DefaultName, Content: []byte("b")}}},
		{"stringer", label{"x"}, Set{{Name: DefaultName, Content: label{"x"}}}},
		{"number", 42, Set{{Name: DefaultName, Content: 42}}},
		{"list", []any{"a", "b"}, Set{{Name: DefaultName, Content: []any{"a", "b"}}}},
		{
			"mapping sorted by name",
			map[string]any{"b.md": "second", "a.json": map[string]any{"k": "v"}},
			Set{{Name: "a.json", Content: map[string]any{"k": "v"}}, {Name: "b.md", Content: "second"}},
		},
		{
			"string mapping",
			map[string]string{"z.txt": "z", "y.txt": "y"},
			Set{{Name: "y.txt", Content: "y"}, {Name: "z.txt", Content: "z"}},
		},
		{
			"set keeps order",
			Set{{Name: "2.txt", Content: "two"}, {Name: "1.txt", Content: "one"}},
			Set{{Name: "2.txt", Content: "two"}, {Name: "1.txt", Content: "one"}},
		},
		{"empty mapping", map[string]any{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.result)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_RejectsUnsafeNames(t *testing.T) {
	bad := []string{"", "  ", "../escape.txt", "a/b.txt", `a\b.txt`, "/abs.txt", "..", "."}
	for _, name := range bad {
		_, err := Normalize(map[string]any{name: "x"})
		require.Error(t, err, "name %q", name)
		assert.True(t, errors.Is(err, ErrInvalidName), "name %q: %v", name, err)
	}
}

func TestNormalize_DuplicateNamesInSet(t *testing.T) {
	_, err := Normalize(Set{{Name: "a.txt"}, {Name: "a.txt"}})
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestSetNames(t *testing.T) {
	set := Set{{Name: "x"}, {Name: "y"}}
	assert.Equal(t, []string{"x", "y"}, set.Names())
	assert.Equal(t, []string{}, Set{}.Names())
}
