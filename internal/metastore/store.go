// Package metastore holds the chunk metadata records that run in lockstep
// with the vector store: the record at ordinal i describes the vector at
// row i. Persisted as a single JSON array.
package metastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

// Record is the persisted metadata for one chunk.
type Record struct {
	ChunkID   string   `json:"chunk_id"`
	FilePath  string   `json:"file_path"`
	ChunkType string   `json:"chunk_type"`
	Name      string   `json:"name"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Code      string   `json:"code"`
	Docstring string   `json:"docstring"`
	Imports   []string `json:"imports"`
}

// NotFoundError reports an ordinal with no record, which indicates the
// vector and metadata stores have diverged.
type NotFoundError struct {
	Ordinal int
	Len     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no metadata record at ordinal %d (store holds %d)", e.Ordinal, e.Len)
}

// Store is an append-only record list. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []Record
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Append adds a record and returns its ordinal.
func (s *Store) Append(rec Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return len(s.records) - 1
}

// AppendAll adds records in order and returns the ordinal of the first.
func (s *Store) AppendAll(recs []Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.records)
	s.records = append(s.records, recs...)
	return first
}

// Get returns the record at the given ordinal.
func (s *Store) Get(ordinal int) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(s.records) {
		return Record{}, &NotFoundError{Ordinal: ordinal, Len: len(s.records)}
	}
	return s.records[ordinal], nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Files returns the set of distinct file paths across all records.
func (s *Store) Files() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make(map[string]int)
	for _, r := range s.records {
		files[r.FilePath]++
	}
	return files
}

// Save writes the records to path atomically as a JSON array.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	records := s.records
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".chunks-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp metadata file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace metadata file: %w", err)
	}

	log.Debug("Saved metadata store", "path", path, "records", len(records))
	return nil
}

// Load reads records from path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse metadata file %s: %w", path, err)
	}

	log.Debug("Loaded metadata store", "path", path, "records", len(records))
	return &Store{records: records}, nil
}
