// Package vectorstore holds embedding vectors in a flat in-memory matrix
// and serves exact nearest-neighbor queries under L2 distance. Rows are
// addressed by ordinal: the position a vector was added at, which the
// metadata store mirrors record for record.
package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// File format: magic, version, dimensions, row count, then count*dim
// little-endian float32 values.
const (
	fileMagic   = "SDXV"
	fileVersion = 1
)

// DimensionMismatchError reports a vector whose width differs from the
// store's established dimensionality.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector has %d dimensions, store expects %d", e.Got, e.Want)
}

// CorruptFileError reports an unreadable or inconsistent vector file.
type CorruptFileError struct {
	Path   string
	Reason string
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt vector file %s: %s", e.Path, e.Reason)
}

// Neighbor is one search hit: the row's ordinal and its L2 distance from
// the query.
type Neighbor struct {
	Ordinal  int
	Distance float64
}

// Store is an append-only in-memory vector matrix. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	dim  int
	data []float32 // len = count*dim, row-major
}

// New creates an empty store. The dimensionality is fixed by the first
// vector added or loaded.
func New() *Store {
	return &Store{}
}

// Add appends a vector and returns its ordinal. All vectors after the
// first must match its width.
func (s *Store) Add(vec []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(vec)
}

// AddBatch appends vectors in order and returns the ordinal of the first.
// On a width mismatch nothing is appended.
func (s *Store) AddBatch(vecs [][]float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range vecs {
		if s.dim != 0 && len(v) != s.dim {
			return 0, &DimensionMismatchError{Want: s.dim, Got: len(v)}
		}
		if s.dim == 0 && len(v) == 0 {
			return 0, fmt.Errorf("cannot add empty vector")
		}
	}

	first := s.countLocked()
	for _, v := range vecs {
		if _, err := s.addLocked(v); err != nil {
			return 0, err
		}
	}
	return first, nil
}

func (s *Store) addLocked(vec []float32) (int, error) {
	if len(vec) == 0 {
		return 0, fmt.Errorf("cannot add empty vector")
	}
	if s.dim == 0 {
		s.dim = len(vec)
	} else if len(vec) != s.dim {
		return 0, &DimensionMismatchError{Want: s.dim, Got: len(vec)}
	}
	ordinal := s.countLocked()
	s.data = append(s.data, vec...)
	return ordinal, nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked()
}

// Dim returns the vector width, or 0 for an empty store.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

func (s *Store) countLocked() int {
	if s.dim == 0 {
		return 0
	}
	return len(s.data) / s.dim
}

// Search returns the k nearest rows to the query by L2 distance, closest
// first, ties broken by lower ordinal. An empty store yields no results.
func (s *Store) Search(query []float32, k int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.countLocked()
	if count == 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, &DimensionMismatchError{Want: s.dim, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	neighbors := make([]Neighbor, count)
	for i := 0; i < count; i++ {
		row := s.data[i*s.dim : (i+1)*s.dim]
		var sum float64
		for j, q := range query {
			d := float64(q) - float64(row[j])
			sum += d * d
		}
		neighbors[i] = Neighbor{Ordinal: i, Distance: math.Sqrt(sum)}
	}

	sort.Slice(neighbors, func(a, b int) bool {
		if neighbors[a].Distance != neighbors[b].Distance {
			return neighbors[a].Distance < neighbors[b].Distance
		}
		return neighbors[a].Ordinal < neighbors[b].Ordinal
	})

	return neighbors[:k], nil
}

// Save writes the store to path atomically (temp file plus rename).
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".vectors-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp vector file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.writeLocked(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp vector file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace vector file: %w", err)
	}

	log.Debug("Saved vector store", "path", path, "count", s.countLocked(), "dim", s.dim)
	return nil
}

func (s *Store) writeLocked(f *os.File) error {
	header := make([]byte, 16)
	copy(header, fileMagic)
	binary.LittleEndian.PutUint32(header[4:], fileVersion)
	binary.LittleEndian.PutUint32(header[8:], uint32(s.dim))
	binary.LittleEndian.PutUint32(header[12:], uint32(s.countLocked()))
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("write vector header: %w", err)
	}

	buf := make([]byte, len(s.data)*4)
	for i, v := range s.data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write vector data: %w", err)
	}
	return nil
}

// Load reads a store from path, replacing any in-memory contents.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(raw) < 16 {
		return nil, &CorruptFileError{Path: path, Reason: "file shorter than header"}
	}
	if string(raw[:4]) != fileMagic {
		return nil, &CorruptFileError{Path: path, Reason: "bad magic"}
	}
	if v := binary.LittleEndian.Uint32(raw[4:]); v != fileVersion {
		return nil, &CorruptFileError{Path: path, Reason: fmt.Sprintf("unsupported version %d", v)}
	}

	dim := int(binary.LittleEndian.Uint32(raw[8:]))
	count := int(binary.LittleEndian.Uint32(raw[12:]))
	body := raw[16:]

	if count > 0 && dim == 0 {
		return nil, &CorruptFileError{Path: path, Reason: "zero dimensions with nonzero count"}
	}
	if len(body) != count*dim*4 {
		return nil, &CorruptFileError{
			Path:   path,
			Reason: fmt.Sprintf("expected %d data bytes, found %d", count*dim*4, len(body)),
		}
	}

	data := make([]float32, count*dim)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}

	s := &Store{data: data}
	if count > 0 {
		s.dim = dim
	}
	log.Debug("Loaded vector store", "path", path, "count", count, "dim", dim)
	return s, nil
}
