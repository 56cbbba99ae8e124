// Package search is the query-facing wrapper around the index: it owns the
// enabled/loaded lifecycle, applies the similarity threshold and result
// limits, and shapes errors for machine consumption.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"semdex/internal/config"
	"semdex/internal/index"
)

// State is the engine lifecycle. An engine starts Uninitialized, moves
// through Loading inside Open, and serves queries only when Ready.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Error codes carried by QueryError.
const (
	CodeDisabled     = "search_disabled"
	CodeNotIndexed   = "not_indexed"
	CodeEmptyIndex   = "empty_index"
	CodeInvalidQuery = "invalid_query"
	CodeNotReady     = "not_ready"
)

// QueryError is a machine-readable query failure: a stable code, a message,
// and a hint telling the caller how to proceed.
type QueryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *QueryError) Error() string {
	return e.Message
}

// Result is one query hit, with the code body truncated to the configured
// display length.
type Result struct {
	ChunkID    string   `json:"chunk_id"`
	FilePath   string   `json:"file_path"`
	ChunkType  string   `json:"chunk_type"`
	Name       string   `json:"name"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Code       string   `json:"code"`
	Truncated  bool     `json:"truncated,omitempty"`
	Docstring  string   `json:"docstring,omitempty"`
	Imports    []string `json:"imports,omitempty"`
	Similarity float64  `json:"similarity"`
	Distance   float64  `json:"distance"`
}

// QueryOptions override the configured defaults for one query. Zero values
// mean "use the configuration".
type QueryOptions struct {
	TopK      int
	Threshold float64 // negative disables the threshold entirely
}

// Engine serves similarity queries over a loaded index.
type Engine struct {
	cfg config.Config
	idx *index.Indexer

	mu    sync.RWMutex
	state State
}

// New creates an engine around an indexer. The engine is not usable until
// Open succeeds.
func New(cfg config.Config, idx *index.Indexer) *Engine {
	return &Engine{cfg: cfg, idx: idx}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Open loads the persisted index and moves the engine to Ready. A missing
// index is reported as a not_indexed QueryError; search being disabled in
// the configuration is search_disabled.
func (e *Engine) Open(ctx context.Context) error {
	if !e.cfg.Search.Enabled {
		return &QueryError{
			Code:    CodeDisabled,
			Message: "semantic search is disabled",
			Hint:    "set search.enabled to true in the configuration",
		}
	}

	e.mu.Lock()
	e.state = StateLoading
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		e.setState(StateUninitialized)
		return err
	}

	if err := e.idx.Load(); err != nil {
		e.setState(StateUninitialized)

		var nf *index.NotFoundError
		if errors.As(err, &nf) {
			return &QueryError{
				Code:    CodeNotIndexed,
				Message: fmt.Sprintf("no index found at %s", nf.Dir),
				Hint:    "run `semdex index <path>` to build one",
			}
		}
		return err
	}

	e.setState(StateReady)
	log.Debug("Search engine ready", "chunks", e.idx.Len())
	return nil
}

// OpenWith marks an already-populated indexer as ready without touching
// disk. Used after an in-process indexing run and in watch mode.
func (e *Engine) OpenWith() error {
	if !e.cfg.Search.Enabled {
		return &QueryError{
			Code:    CodeDisabled,
			Message: "semantic search is disabled",
			Hint:    "set search.enabled to true in the configuration",
		}
	}
	e.setState(StateReady)
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Query runs a similarity search. Results come back sorted by similarity,
// best first, already filtered by the threshold and truncated for display.
func (e *Engine) Query(ctx context.Context, query string, opts QueryOptions) ([]Result, error) {
	if st := e.State(); st != StateReady {
		return nil, &QueryError{
			Code:    CodeNotReady,
			Message: fmt.Sprintf("search engine is %s", st),
			Hint:    "call Open before querying",
		}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &QueryError{
			Code:    CodeInvalidQuery,
			Message: "query is empty",
			Hint:    "provide a natural-language description of the code to find",
		}
	}

	if e.idx.Len() == 0 {
		return nil, &QueryError{
			Code:    CodeEmptyIndex,
			Message: "the index contains no chunks",
			Hint:    "index a directory with Python files first",
		}
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = e.cfg.Search.TopK
	}
	if topK < config.MinTopK {
		topK = config.MinTopK
	}
	if topK > config.MaxTopK {
		topK = config.MaxTopK
	}

	threshold := e.cfg.Search.SimilarityThreshold
	if opts.Threshold > 0 {
		threshold = opts.Threshold
	} else if opts.Threshold < 0 {
		threshold = 0
	}

	scored, err := e.idx.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(scored))
	for _, sc := range scored {
		if sc.Similarity < threshold {
			continue
		}
		code, truncated := truncateCode(sc.Record.Code, e.cfg.Search.MaxCodeLength)
		results = append(results, Result{
			ChunkID:    sc.Record.ChunkID,
			FilePath:   sc.Record.FilePath,
			ChunkType:  sc.Record.ChunkType,
			Name:       sc.Record.Name,
			StartLine:  sc.Record.StartLine,
			EndLine:    sc.Record.EndLine,
			Code:       code,
			Truncated:  truncated,
			Docstring:  sc.Record.Docstring,
			Imports:    sc.Record.Imports,
			Similarity: sc.Similarity,
			Distance:   sc.Distance,
		})
	}

	log.Debug("Query served", "query", query, "hits", len(results), "top_k", topK, "threshold", threshold)
	return results, nil
}

// truncationMarker is appended to code bodies cut for display.
const truncationMarker = "\n... [truncated]"

// truncateCode cuts code to at most maxLen runes, never splitting a rune.
func truncateCode(code string, maxLen int) (string, bool) {
	if maxLen <= 0 {
		return code, false
	}
	runes := []rune(code)
	if len(runes) <= maxLen {
		return code, false
	}
	return string(runes[:maxLen]) + truncationMarker, true
}
