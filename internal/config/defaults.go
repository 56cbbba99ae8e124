package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Search defaults
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.3
	DefaultMaxCodeLength       = 500

	// Search bounds
	MinTopK       = 1
	MaxTopK       = 50
	MinCodeLength = 100
	MaxCodeLength = 10000

	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaModel       = "nomic-embed-text"
	DefaultOpenAIModel       = "text-embedding-3-small"

	// Indexing defaults
	DefaultBatchSize   = 50
	DefaultMaxFileSize = 1 << 20 // 1MB

	// Persisted index file names
	VectorFileName   = "vectors.bin"
	MetadataFileName = "chunks.json"
)

// DefaultIgnorePatterns returns the default list of patterns excluded from
// indexing, in gitignore syntax. Directory patterns prune the walk entirely.
func DefaultIgnorePatterns() []string {
	return []string{
		// Version control
		".git/",
		".svn/",
		".hg/",

		// Virtual environments
		".venv/",
		"venv/",
		"env/",
		".tox/",

		// Dependency and cache directories
		"node_modules/",
		"vendor/",
		"site-packages/",
		".mypy_cache/",
		".pytest_cache/",
		".ruff_cache/",

		// Compiled artifacts
		"__pycache__/",
		"*.pyc",
		"*.pyo",
		"build/",
		"dist/",
		"*.egg-info/",

		// IDE/Editor
		".idea/",
		".vscode/",
		"*.swp",
		"*~",

		// Misc
		".DS_Store",
		".env",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/semdex"
	}
	return filepath.Join(home, ".config", "semdex")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/semdex"
	}
	return filepath.Join(home, ".local", "share", "semdex")
}

// DefaultIndexDir returns the default directory holding the persisted index.
func DefaultIndexDir() string {
	return filepath.Join(DefaultDataDir(), "index")
}

// VectorPath returns the vector file path under the given index directory.
func VectorPath(dir string) string {
	return filepath.Join(dir, VectorFileName)
}

// MetadataPath returns the metadata file path under the given index directory.
func MetadataPath(dir string) string {
	return filepath.Join(dir, MetadataFileName)
}
