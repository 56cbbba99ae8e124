package index

import "fmt"

// NotFoundError reports that no persisted index exists at a directory.
// Distinct from an index that exists but holds zero chunks.
type NotFoundError struct {
	Dir string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no index found at %s (run `semdex index` first)", e.Dir)
}

// CorruptionError reports a persisted index whose files disagree with each
// other or cannot be read.
type CorruptionError struct {
	Dir    string
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("index at %s is corrupt: %s", e.Dir, e.Reason)
}

// FileError records one file that failed during an indexing run. The run
// itself continues past these.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Err)
}
