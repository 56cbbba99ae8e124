// Package chunker turns parsed Python files into semantic chunks, the unit
// of embedding, storage, and retrieval.
package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"semdex/internal/parser"
)

// ChunkType identifies what kind of code a chunk holds.
type ChunkType string

// The string values are part of the persisted metadata format.
const (
	TypeFunction  ChunkType = "function"
	TypeClass     ChunkType = "class"
	TypeDocstring ChunkType = "module_docstring"
	TypeImports   ChunkType = "imports"
)

// Chunk is one indexable unit of code with its location and context.
type Chunk struct {
	ID        string
	FilePath  string
	Type      ChunkType
	Name      string
	StartLine int
	EndLine   int
	Code      string
	Docstring string
	Imports   []string
}

// EmbeddingText returns the text sent to the embedding model: the code plus
// its docstring, so that natural-language queries can match intent as well
// as implementation.
func (c *Chunk) EmbeddingText() string {
	var b strings.Builder
	switch c.Type {
	case TypeFunction:
		fmt.Fprintf(&b, "Function %s in %s\n", c.Name, c.FilePath)
	case TypeClass:
		fmt.Fprintf(&b, "Class %s in %s\n", c.Name, c.FilePath)
	case TypeDocstring:
		fmt.Fprintf(&b, "Module %s\n", c.FilePath)
	case TypeImports:
		fmt.Fprintf(&b, "Imports in %s\n", c.FilePath)
	}
	if c.Docstring != "" && c.Type != TypeDocstring {
		b.WriteString(c.Docstring)
		b.WriteString("\n")
	}
	b.WriteString(c.Code)
	return b.String()
}

// Summary returns a one-line human-readable description of the chunk, e.g.
// "function `parse_config` in app/config.py:12-30".
func (c *Chunk) Summary() string {
	name := c.Name
	if name == "" {
		name = filepath.Base(c.FilePath)
	}
	return fmt.Sprintf("%s `%s` in %s:%d-%d", c.Type, name, c.FilePath, c.StartLine, c.EndLine)
}

// ChunkFile converts a parsed file into chunks in stable order: module
// docstring, imports block, then functions and classes in source order.
// Methods stay inside their class chunk and are not emitted separately.
func ChunkFile(pf *parser.ParsedFile, path string) []Chunk {
	var chunks []Chunk

	if pf.ModuleDocstring != "" {
		chunks = append(chunks, Chunk{
			ID:        uuid.NewString(),
			FilePath:  path,
			Type:      TypeDocstring,
			Name:      moduleName(path),
			StartLine: 1,
			EndLine:   1 + strings.Count(pf.ModuleDocstring, "\n"),
			Code:      pf.ModuleDocstring,
			Docstring: pf.ModuleDocstring,
		})
	}

	if len(pf.Imports) > 0 {
		chunks = append(chunks, Chunk{
			ID:        uuid.NewString(),
			FilePath:  path,
			Type:      TypeImports,
			Name:      moduleName(path),
			StartLine: 1,
			EndLine:   1,
			Code:      "import " + strings.Join(pf.Imports, "\nimport "),
			Imports:   pf.Imports,
		})
	}

	for _, fn := range pf.Functions {
		chunks = append(chunks, Chunk{
			ID:        uuid.NewString(),
			FilePath:  path,
			Type:      TypeFunction,
			Name:      fn.Name,
			StartLine: fn.StartLine,
			EndLine:   fn.EndLine,
			Code:      fn.Source,
			Docstring: fn.Docstring,
		})
	}

	for _, cls := range pf.Classes {
		chunks = append(chunks, Chunk{
			ID:        uuid.NewString(),
			FilePath:  path,
			Type:      TypeClass,
			Name:      cls.Name,
			StartLine: cls.StartLine,
			EndLine:   cls.EndLine,
			Code:      cls.Source,
			Docstring: cls.Docstring,
		})
	}

	return chunks
}

// moduleName derives a display name for file-level chunks from the path.
func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
