// Package index orchestrates parsing, chunking, embedding, and storage
// into a searchable codebase index.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"semdex/internal/chunker"
	"semdex/internal/config"
	"semdex/internal/embeddings"
	"semdex/internal/fs"
	"semdex/internal/metastore"
	"semdex/internal/parser"
	"semdex/internal/vectorstore"
)

// embedConcurrency bounds the number of in-flight embedding batches.
const embedConcurrency = 4

// Stats summarizes an indexing run. Errors lists the files that were
// skipped; the run continues past them.
type Stats struct {
	FilesProcessed int           `json:"files_processed"`
	FilesSkipped   int           `json:"files_skipped"`
	ChunksCreated  int           `json:"chunks_created"`
	Duration       time.Duration `json:"duration"`
	Errors         []FileError   `json:"errors,omitempty"`
}

// Status describes the current index contents.
type Status struct {
	Chunks     int    `json:"chunks"`
	Files      int    `json:"files"`
	Dimensions int    `json:"dimensions"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}

// ScoredChunk is one search result: a metadata record with its L2 distance
// from the query and the derived similarity score.
type ScoredChunk struct {
	Record     metastore.Record `json:"chunk"`
	Distance   float64          `json:"distance"`
	Similarity float64          `json:"similarity"`
}

// Options configures one indexing run.
type Options struct {
	// Recursive descends into subdirectories; when false only files
	// directly under the root are indexed.
	Recursive bool

	// Force re-indexes files whose content hash is unchanged.
	Force bool

	// DryRun walks and parses but embeds and stores nothing.
	DryRun bool

	// OnProgress, when set, is called after each file.
	OnProgress func(processed, total int, path string)
}

// Indexer builds and queries the index. All mutation is append-only: the
// vector and metadata stores grow in lockstep and record ordinals never
// move. Safe for concurrent use.
type Indexer struct {
	cfg      config.Config
	embedder embeddings.Service

	mu      sync.Mutex
	vectors *vectorstore.Store
	meta    *metastore.Store
	hashes  map[string]string // relPath -> content hash of last indexing
}

// New creates an empty Indexer.
func New(cfg config.Config, embedder embeddings.Service) *Indexer {
	return &Indexer{
		cfg:      cfg,
		embedder: embedder,
		vectors:  vectorstore.New(),
		meta:     metastore.New(),
		hashes:   make(map[string]string),
	}
}

// IndexDirectory walks root and indexes every Python file found. Files
// with syntax errors are skipped and reported in the stats; an embedding
// failure aborts the run, preserving everything indexed before it.
func (idx *Indexer) IndexDirectory(ctx context.Context, root string, opts Options) (*Stats, error) {
	start := time.Now()

	walker, err := fs.NewWalker(fs.WalkOptions{
		Root:           root,
		Recursive:      opts.Recursive,
		IgnorePatterns: idx.cfg.Ignore,
		UseGitignore:   true,
		MaxFileSize:    int64(idx.cfg.Index.MaxFileSize),
	})
	if err != nil {
		return nil, err
	}

	var files []fs.FileInfo
	if err := walker.Walk(func(fi fs.FileInfo) error {
		files = append(files, fi)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	log.Info("Found files to index", "root", root, "count", len(files))

	stats := &Stats{}
	for i, fi := range files {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		n, err := idx.indexOne(ctx, fi, opts)
		switch {
		case err == nil:
			if n < 0 {
				stats.FilesSkipped++
			} else {
				stats.FilesProcessed++
				stats.ChunksCreated += n
			}
		case isRecoverable(err):
			log.Warn("Skipping file", "path", fi.RelPath, "error", err)
			stats.FilesSkipped++
			stats.Errors = append(stats.Errors, FileError{Path: fi.RelPath, Err: err.Error()})
		default:
			// Embedding and storage failures abort the run. Chunks already
			// stored stay valid.
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("index %s: %w", fi.RelPath, err)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(files), fi.RelPath)
		}
	}

	stats.Duration = time.Since(start)
	log.Info("Indexing complete",
		"files", stats.FilesProcessed,
		"skipped", stats.FilesSkipped,
		"chunks", stats.ChunksCreated,
		"duration", stats.Duration.Round(time.Millisecond),
	)
	return stats, nil
}

// IndexFile indexes a single file by path, always re-embedding it. Used by
// watch mode for incremental updates. Returns the number of chunks added.
func (idx *Indexer) IndexFile(ctx context.Context, root, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = path
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	fi := fs.FileInfo{
		Path:    path,
		RelPath: relPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    fs.HashContent(content),
	}
	n, err := idx.indexOne(ctx, fi, Options{Force: true})
	if n < 0 {
		n = 0
	}
	return n, err
}

// indexOne indexes one file. Returns -1 with nil error when the file was
// skipped, either as unchanged or because it yields no chunks.
func (idx *Indexer) indexOne(ctx context.Context, fi fs.FileInfo, opts Options) (int, error) {
	if !opts.Force {
		idx.mu.Lock()
		prev, seen := idx.hashes[fi.RelPath]
		idx.mu.Unlock()
		if seen && prev == fi.Hash {
			log.Debug("File unchanged, skipping", "path", fi.RelPath)
			return -1, nil
		}
	}

	content, err := os.ReadFile(fi.Path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	pf, err := parser.New().Parse(content, fi.RelPath)
	if err != nil {
		return 0, err
	}

	// A file with nothing to chunk counts as skipped, not processed.
	chunks := chunker.ChunkFile(pf, fi.RelPath)
	if len(chunks) == 0 {
		log.Debug("No chunks in file", "path", fi.RelPath)
		idx.rememberHash(fi)
		return -1, nil
	}

	if opts.DryRun {
		return len(chunks), nil
	}

	vecs, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	records := make([]metastore.Record, len(chunks))
	for i, c := range chunks {
		// Imports always serializes as an array, even when empty.
		imports := c.Imports
		if imports == nil {
			imports = []string{}
		}
		records[i] = metastore.Record{
			ChunkID:   c.ID,
			FilePath:  c.FilePath,
			ChunkType: string(c.Type),
			Name:      c.Name,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Code:      c.Code,
			Docstring: c.Docstring,
			Imports:   imports,
		}
	}

	// Vectors and records land at the same ordinals; both stores are
	// appended under one lock so readers never see them diverge.
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.vectors.AddBatch(vecs); err != nil {
		return 0, err
	}
	idx.meta.AppendAll(records)
	idx.hashes[fi.RelPath] = fi.Hash

	log.Debug("Indexed file", "path", fi.RelPath, "chunks", len(chunks))
	return len(chunks), nil
}

func (idx *Indexer) rememberHash(fi fs.FileInfo) {
	idx.mu.Lock()
	idx.hashes[fi.RelPath] = fi.Hash
	idx.mu.Unlock()
}

// embedChunks embeds all chunks of one file, batched and bounded-parallel.
// The result preserves chunk order: vecs[i] belongs to chunks[i].
func (idx *Indexer) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText()
	}

	batchSize := idx.cfg.Index.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}

	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			batch, err := idx.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch: %w", err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-start)
			}
			copy(vecs[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Search embeds the query and returns the k nearest chunks, best first.
// Similarity is exp(-distance), mapping distance 0 to 1.0.
func (idx *Indexer) Search(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	queryVec, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	idx.mu.Lock()
	vectors, meta := idx.vectors, idx.meta
	idx.mu.Unlock()

	neighbors, err := vectors.Search(queryVec, k)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredChunk, 0, len(neighbors))
	for _, n := range neighbors {
		rec, err := meta.Get(n.Ordinal)
		if err != nil {
			return nil, &CorruptionError{
				Dir:    idx.cfg.Index.Dir,
				Reason: fmt.Sprintf("vector %d has no metadata record", n.Ordinal),
			}
		}
		results = append(results, ScoredChunk{
			Record:     rec,
			Distance:   n.Distance,
			Similarity: math.Exp(-n.Distance),
		})
	}
	return results, nil
}

// Status reports the current index contents.
func (idx *Indexer) Status() Status {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return Status{
		Chunks:     idx.meta.Len(),
		Files:      len(idx.meta.Files()),
		Dimensions: idx.vectors.Dim(),
		Provider:   string(idx.embedder.Provider()),
		Model:      idx.embedder.ModelName(),
	}
}

// Len returns the number of indexed chunks.
func (idx *Indexer) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.meta.Len()
}

// Save persists the index to the configured directory. Both files are
// written atomically; a crash leaves either the old index or the new one.
func (idx *Indexer) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	dir := idx.cfg.Index.Dir
	if err := idx.vectors.Save(config.VectorPath(dir)); err != nil {
		return err
	}
	if err := idx.meta.Save(config.MetadataPath(dir)); err != nil {
		return err
	}
	log.Debug("Saved index", "dir", dir, "chunks", idx.meta.Len())
	return nil
}

// Load replaces the in-memory index with the persisted one. Returns
// *NotFoundError when neither index file exists, *CorruptionError when the
// files are unreadable or their row counts diverge, and
// *vectorstore.DimensionMismatchError when the stored vectors do not match
// the configured embedding model's width.
func (idx *Indexer) Load() error {
	dir := idx.cfg.Index.Dir
	vecPath, metaPath := config.VectorPath(dir), config.MetadataPath(dir)

	vectors, vecErr := vectorstore.Load(vecPath)
	meta, metaErr := metastore.Load(metaPath)

	if os.IsNotExist(vecErr) && os.IsNotExist(metaErr) {
		return &NotFoundError{Dir: dir}
	}
	if vecErr != nil {
		if os.IsNotExist(vecErr) {
			return &CorruptionError{Dir: dir, Reason: "metadata file present but vector file missing"}
		}
		return &CorruptionError{Dir: dir, Reason: vecErr.Error()}
	}
	if metaErr != nil {
		if os.IsNotExist(metaErr) {
			return &CorruptionError{Dir: dir, Reason: "vector file present but metadata file missing"}
		}
		return &CorruptionError{Dir: dir, Reason: metaErr.Error()}
	}

	if vectors.Len() != meta.Len() {
		return &CorruptionError{
			Dir:    dir,
			Reason: fmt.Sprintf("%d vectors but %d metadata records", vectors.Len(), meta.Len()),
		}
	}
	if vectors.Len() > 0 && vectors.Dim() != idx.embedder.Dimensions() {
		return &vectorstore.DimensionMismatchError{
			Want: idx.embedder.Dimensions(),
			Got:  vectors.Dim(),
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = vectors
	idx.meta = meta
	idx.hashes = make(map[string]string)

	log.Debug("Loaded index", "dir", dir, "chunks", meta.Len())
	return nil
}

// Clear discards the in-memory index and removes the persisted files.
func (idx *Indexer) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	dir := idx.cfg.Index.Dir
	for _, path := range []string{config.VectorPath(dir), config.MetadataPath(dir)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}

	idx.vectors = vectorstore.New()
	idx.meta = metastore.New()
	idx.hashes = make(map[string]string)
	log.Info("Cleared index", "dir", dir)
	return nil
}

// isRecoverable reports whether a per-file error should skip the file
// rather than abort the run.
func isRecoverable(err error) bool {
	var perr *parser.ParseError
	if errors.As(err, &perr) {
		return true
	}
	// Files deleted between walk and read.
	return errors.Is(err, os.ErrNotExist)
}
