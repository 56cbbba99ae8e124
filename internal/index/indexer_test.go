package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semdex/internal/chunker"
	"semdex/internal/config"
	"semdex/internal/embeddings"
	"semdex/internal/vectorstore"
)

// mockEmbedder produces deterministic vectors from a cheap text hash so
// that identical text always lands at the same point.
type mockEmbedder struct {
	dims  int
	calls int
	fail  bool
}

func (m *mockEmbedder) vector(text string) []float32 {
	hash := 0
	for _, c := range text {
		hash = hash*31 + int(c)
	}
	vec := make([]float32, m.dims)
	for i := range vec {
		v := (hash + i) % 100
		if v < 0 {
			v += 100
		}
		vec[i] = float32(v) / 100.0
	}
	return vec
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.fail {
		return nil, errors.New("embedder unavailable")
	}
	m.calls++
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.Embed(ctx, text)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.fail {
		return nil, errors.New("embedder unavailable")
	}
	m.calls++
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = m.vector(t)
	}
	return vecs, nil
}

func (m *mockEmbedder) Dimensions() int               { return m.dims }
func (m *mockEmbedder) Provider() embeddings.Provider { return "mock" }
func (m *mockEmbedder) ModelName() string             { return "mock-model" }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := *config.Default()
	cfg.Index.Dir = t.TempDir()
	return cfg
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestIndexDirectory(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"calc.py": "def add(a, b):\n    \"\"\"Add numbers.\"\"\"\n    return a + b\n",
		"models.py": "import os\n\nclass User:\n    def name(self):\n        return self._name\n",
		"empty.py": "# nothing\n",
	})

	idx := New(testConfig(t), &mockEmbedder{dims: 8})
	stats, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesProcessed)
	// The comment-only file yields no chunks and counts as skipped.
	assert.Equal(t, 1, stats.FilesSkipped)
	// add + (imports, User) = 3 chunks
	assert.Equal(t, 3, stats.ChunksCreated)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 3, idx.Len())
}

func TestIndexDirectoryNonRecursive(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"top.py":        "def top():\n    pass\n",
		"pkg/nested.py": "def nested():\n    pass\n",
	})

	idx := New(testConfig(t), &mockEmbedder{dims: 8})
	stats, err := idx.IndexDirectory(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 1, stats.ChunksCreated)
	assert.Equal(t, 1, idx.Len())
}

func TestIndexDirectorySkipsSyntaxErrors(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"good.py":   "def ok():\n    pass\n",
		"broken.py": "def broken(:\n    pass\n",
	})

	idx := New(testConfig(t), &mockEmbedder{dims: 8})
	stats, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err, "a syntax error must not fail the run")

	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 1, stats.FilesSkipped)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "broken.py", stats.Errors[0].Path)
	assert.Equal(t, 1, idx.Len())
}

func TestIndexDirectoryEmbeddingFailureAborts(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n",
	})

	idx := New(testConfig(t), &mockEmbedder{dims: 8, fail: true})
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder unavailable")
	assert.Equal(t, 0, idx.Len())
}

func TestIndexDirectoryUnchangedFilesSkipped(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n",
	})

	idx := New(testConfig(t), &mockEmbedder{dims: 8})
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)

	stats, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesProcessed)
	assert.Equal(t, 1, stats.FilesSkipped)

	// Force embeds it again; the index is append-only so the chunk count
	// doubles.
	stats, err = idx.IndexDirectory(context.Background(), root, Options{Recursive: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 2, idx.Len())
}

func TestIndexDirectoryDryRun(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n\ndef g():\n    pass\n",
	})

	emb := &mockEmbedder{dims: 8}
	idx := New(testConfig(t), emb)
	stats, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ChunksCreated)
	assert.Equal(t, 0, idx.Len(), "dry run must not store anything")
	assert.Equal(t, 0, emb.calls, "dry run must not embed")
}

func TestIndexFile(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n",
	})

	idx := New(testConfig(t), &mockEmbedder{dims: 8})
	n, err := idx.IndexFile(context.Background(), root, filepath.Join(root, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, idx.Len())
}

func TestSearchRanksExactTextFirst(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def parse_config():\n    pass\n",
		"b.py": "def render_page():\n    pass\n",
		"c.py": "def send_email():\n    pass\n",
	})

	emb := &mockEmbedder{dims: 16}
	idx := New(testConfig(t), emb)
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)

	// Query with the exact embedding text of one chunk: distance 0,
	// similarity exp(0) = 1.
	var queryText string
	for ord := 0; ord < idx.Len(); ord++ {
		r, err := idx.meta.Get(ord)
		require.NoError(t, err)
		if r.Name == "parse_config" {
			c := chunker.Chunk{
				FilePath:  r.FilePath,
				Type:      chunker.ChunkType(r.ChunkType),
				Name:      r.Name,
				Code:      r.Code,
				Docstring: r.Docstring,
			}
			queryText = c.EmbeddingText()
		}
	}
	require.NotEmpty(t, queryText)

	results, err := idx.Search(context.Background(), queryText, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "parse_config", results[0].Record.Name)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)

	// Descending similarity, ascending distance.
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := New(testConfig(t), &mockEmbedder{dims: 8})
	results, err := idx.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n",
		"b.py": "def g():\n    pass\n",
	})

	cfg := testConfig(t)
	emb := &mockEmbedder{dims: 8}

	idx := New(cfg, emb)
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)
	require.NoError(t, idx.Save())

	fresh := New(cfg, emb)
	require.NoError(t, fresh.Load())
	assert.Equal(t, 2, fresh.Len())

	status := fresh.Status()
	assert.Equal(t, 2, status.Chunks)
	assert.Equal(t, 2, status.Files)
	assert.Equal(t, 8, status.Dimensions)
}

func TestLoadMissingIndex(t *testing.T) {
	idx := New(testConfig(t), &mockEmbedder{dims: 8})
	err := idx.Load()

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestLoadDimensionMismatch(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n",
	})

	cfg := testConfig(t)
	idx := New(cfg, &mockEmbedder{dims: 8})
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)
	require.NoError(t, idx.Save())

	// A differently-sized embedding model cannot serve this index.
	err = New(cfg, &mockEmbedder{dims: 16}).Load()
	var mismatch *vectorstore.DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 16, mismatch.Want)
	assert.Equal(t, 8, mismatch.Got)
}

func TestLoadRowCountMismatch(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n",
	})

	cfg := testConfig(t)
	idx := New(cfg, &mockEmbedder{dims: 8})
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)
	require.NoError(t, idx.Save())

	// Truncate the metadata to an empty array while vectors keep one row.
	require.NoError(t, os.WriteFile(config.MetadataPath(cfg.Index.Dir), []byte("[]"), 0o644))

	err = New(cfg, &mockEmbedder{dims: 8}).Load()
	var corrupt *CorruptionError
	require.True(t, errors.As(err, &corrupt))
	assert.Contains(t, err.Error(), "metadata records")
}

func TestLoadHalfMissing(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n",
	})

	cfg := testConfig(t)
	idx := New(cfg, &mockEmbedder{dims: 8})
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)
	require.NoError(t, idx.Save())

	require.NoError(t, os.Remove(config.VectorPath(cfg.Index.Dir)))

	err = New(cfg, &mockEmbedder{dims: 8}).Load()
	var corrupt *CorruptionError
	require.True(t, errors.As(err, &corrupt))
}

func TestClear(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n",
	})

	cfg := testConfig(t)
	idx := New(cfg, &mockEmbedder{dims: 8})
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)
	require.NoError(t, idx.Save())

	require.NoError(t, idx.Clear())
	assert.Equal(t, 0, idx.Len())

	_, err = os.Stat(config.VectorPath(cfg.Index.Dir))
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	require.NoError(t, idx.Clear())
}

func TestStatsAreOrdinalAligned(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.py": "def f():\n    pass\n\ndef g():\n    pass\n",
		"b.py": "class C:\n    pass\n",
	})

	idx := New(testConfig(t), &mockEmbedder{dims: 8})
	_, err := idx.IndexDirectory(context.Background(), root, Options{Recursive: true})
	require.NoError(t, err)

	// Every vector ordinal must resolve to a record.
	for ord := 0; ord < idx.Len(); ord++ {
		_, err := idx.meta.Get(ord)
		require.NoError(t, err)
	}
}
