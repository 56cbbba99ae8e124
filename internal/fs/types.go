package fs

import "time"

// FileInfo describes one source file discovered during a walk.
type FileInfo struct {
	Path    string // absolute path
	RelPath string // path relative to the walk root
	Size    int64
	ModTime time.Time
	Hash    string // xxhash of contents
}

// WalkOptions configures a directory walk.
type WalkOptions struct {
	Root           string
	Recursive      bool     // descend into subdirectories
	IgnorePatterns []string // gitignore syntax, layered over the root .gitignore
	UseGitignore   bool
	MaxFileSize    int64 // skip files larger than this, 0 for no limit
	IncludeHidden  bool
}

// WalkStats summarizes one walk.
type WalkStats struct {
	FilesFound   int
	FilesSkipped int
	DirsSkipped  int
	TotalBytes   int64
}
