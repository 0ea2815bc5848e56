package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTaskID = "task_1700000000_abcdef01"

func TestFileSink_StructuredRoundTrip(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	value := map[string]any{
		"title":    "Focus: Micro eBook",
		"chapters": []any{"intro", "habits", "review"},
		"count":    3,
		"ratio":    0.5,
		"meta":     map[string]any{"draft": true, "topic": "focus"},
	}

	for _, name := range []string{"ebook.json", "ebook.yaml", "ebook.yml", "outline", "report.md"} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, sink.Write(testTaskID, name, value))
			got, err := sink.Read(testTaskID, name)
			require.NoError(t, err)
			assert.Equal(t, value, got)
		})
	}
}

func TestFileSink_ReadIntoRestoresTypes(t *testing.T) {
	sink := NewFileSink(t.TempDir())

	list := []string{"x", "y"}
	require.NoError(t, sink.Write(testTaskID, "list.json", list))
	var gotList []string
	require.NoError(t, sink.ReadInto(testTaskID, "list.json", &gotList))
	assert.Equal(t, list, gotList)

	type outline struct {
		Chapters []string `yaml:"chapters" json:"chapters"`
		Count    int      `yaml:"count" json:"count"`
	}
	want := outline{Chapters: []string{"a", "b"}, Count: 2}
	require.NoError(t, sink.Write(testTaskID, "outline", want))
	var got outline
	require.NoError(t, sink.ReadInto(testTaskID, "outline", &got))
	assert.Equal(t, want, got)

	require.NoError(t, sink.Write(testTaskID, "notes.txt", "plain"))
	assert.Error(t, sink.ReadInto(testTaskID, "notes.txt", &got))
}

func TestFileSink_TextUnderStructuredName(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	require.NoError(t, sink.Write(testTaskID, "raw.json", "not { json"))

	got, err := sink.Read(testTaskID, "raw.json")
	require.NoError(t, err)
	assert.Equal(t, "not { json", got)
}

func TestFileSink_UnrecordedFilesDecodeByExtension(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	dir := filepath.Join(sink.Root(), testTaskID)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.json"), []byte(`{"n": 1}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.md"), []byte(`{"n": 1}`), 0644))

	got, err := sink.Read(testTaskID, "seed.json")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 1}, got)

	got, err = sink.Read(testTaskID, "seed.md")
	require.NoError(t, err)
	assert.Equal(t, `{"n": 1}`, got)
}

func TestFileSink_ManifestNameIsReserved(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	require.ErrorIs(t, sink.Write(testTaskID, manifestName, "x"), ErrInvalidName)
}

func TestFileSink_JSONIsIndented(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	require.NoError(t, sink.Write(testTaskID, "pack.json", map[string]any{"k": "v"}))

	data, err := os.ReadFile(filepath.Join(sink.Root(), testTaskID, "pack.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"k\": \"v\"\n}\n", string(data))
}

func TestFileSink_ScalarsAreText(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	require.NoError(t, sink.Write(testTaskID, "a.txt", "hello"))
	require.NoError(t, sink.Write(testTaskID, "b.txt", []byte("bytes")))
	require.NoError(t, sink.Write(testTaskID, "c.txt", 7))
	require.NoError(t, sink.Write(testTaskID, "d.md", label{"x"}))

	for name, want := range map[string]string{"a.txt": "hello", "b.txt": "bytes", "c.txt": "7", "d.md": "label:x"} {
		got, err := sink.Read(testTaskID, name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestFileSink_NamespacedByTask(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	require.NoError(t, sink.Write("task_a", "out.txt", "from a"))
	require.NoError(t, sink.Write("task_b", "out.txt", "from b"))

	a, err := sink.Read("task_a", "out.txt")
	require.NoError(t, err)
	b, err := sink.Read("task_b", "out.txt")
	require.NoError(t, err)
	assert.Equal(t, "from a", a)
	assert.Equal(t, "from b", b)
}

func TestFileSink_RejectsUnsafePaths(t *testing.T) {
	root := t.TempDir()
	sink := NewFileSink(root)

	require.ErrorIs(t, sink.Write(testTaskID, "../x.txt", "x"), ErrInvalidName)
	require.ErrorIs(t, sink.Write("../elsewhere", "x.txt", "x"), ErrInvalidName)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSink_List(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	names, err := sink.List(testTaskID)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = WriteSet(sink, testTaskID, Set{{Name: "b.txt", Content: "b"}, {Name: "a.json", Content: []any{"x"}}})
	require.NoError(t, err)

	names, err = sink.List(testTaskID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.json", "b.txt"}, names, "the manifest is not an artifact")
}

func TestWriteSet_StopsAtFirstFailure(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	set := Set{{Name: "ok.txt", Content: "ok"}, {Name: "bad/name", Content: "x"}, {Name: "never.txt", Content: "n"}}

	written, err := WriteSet(sink, testTaskID, set)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad/name"))
	assert.Equal(t, []string{"ok.txt"}, written)
}

func TestFileSink_ConcurrentWritesSameTask(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, sink.Write(testTaskID, "shared.json", map[string]any{"i": float64(i)}))
		}(i)
	}
	wg.Wait()

	got, err := sink.Read(testTaskID, "shared.json")
	require.NoError(t, err)
	assert.Contains(t, got, "i")
}
