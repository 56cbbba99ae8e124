package metastore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(path, name string) Record {
	return Record{
		ChunkID:   "id-" + name,
		FilePath:  path,
		ChunkType: "function",
		Name:      name,
		StartLine: 1,
		EndLine:   5,
		Code:      "def " + name + "(): pass",
	}
}

func TestAppendAndGet(t *testing.T) {
	s := New()

	ord := s.Append(sampleRecord("a.py", "f"))
	assert.Equal(t, 0, ord)
	ord = s.Append(sampleRecord("a.py", "g"))
	assert.Equal(t, 1, ord)

	rec, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "g", rec.Name)
	assert.Equal(t, 2, s.Len())
}

func TestGetOutOfRange(t *testing.T) {
	s := New()
	s.Append(sampleRecord("a.py", "f"))

	for _, ordinal := range []int{-1, 1, 100} {
		_, err := s.Get(ordinal)
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, ordinal, nf.Ordinal)
	}
}

func TestFiles(t *testing.T) {
	s := New()
	s.Append(sampleRecord("a.py", "f"))
	s.Append(sampleRecord("a.py", "g"))
	s.Append(sampleRecord("b.py", "h"))

	files := s.Files()
	assert.Equal(t, map[string]int{"a.py": 2, "b.py": 1}, files)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")

	s := New()
	rec := sampleRecord("a.py", "f")
	rec.Docstring = "Does a thing."
	rec.Imports = []string{"os", "sys"}
	s.Append(rec)
	s.Append(sampleRecord("b.py", "g"))

	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	got, err := loaded.Get(0)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestSaveUsesSnakeCaseFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	s := New()
	s.Append(sampleRecord("a.py", "f"))
	require.NoError(t, s.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var generic []map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	require.Len(t, generic, 1)
	// docstring and imports are present even when empty.
	for _, key := range []string{"chunk_id", "file_path", "chunk_type", "start_line", "end_line", "code", "docstring", "imports"} {
		assert.Contains(t, generic[0], key)
	}
}

func TestSaveEmptyStoreWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	require.NoError(t, New().Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse metadata file")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, os.IsNotExist(err))
}
