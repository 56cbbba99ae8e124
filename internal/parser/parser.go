// Package parser extracts the structural representation of a Python source
// file: module docstring, imports, top-level functions, and classes with
// their methods. It is a pure function of file content and performs no
// semantic resolution.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ParsedFile is the structural representation of one source file.
type ParsedFile struct {
	ModuleDocstring string
	Imports         []string
	Functions       []Function
	Classes         []Class
}

// Function describes a function or method definition. Lines are 1-indexed
// and inclusive. Source is the exact source text of the definition,
// including any decorators.
type Function struct {
	Name      string
	Signature string
	Docstring string
	Source    string
	StartLine int
	EndLine   int
}

// Class describes a class definition. Source includes all methods.
type Class struct {
	Name      string
	Bases     []string
	Docstring string
	Methods   []Function
	Source    string
	StartLine int
	EndLine   int
}

// ParseError reports a syntax error in the source. It is recoverable at the
// indexing level: the file is skipped and the run continues.
type ParseError struct {
	Path string
	Line int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syntax error in %s at line %d", e.Path, e.Line)
}

// Parser parses Python source files. A Parser is not safe for concurrent
// use; create one per goroutine.
type Parser struct {
	inner *sitter.Parser
}

// New creates a Python parser.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{inner: p}
}

// Parse extracts the structure of the given source. Empty and comment-only
// files yield an empty ParsedFile. A syntax error yields a *ParseError.
func (p *Parser) Parse(src []byte, path string) (*ParsedFile, error) {
	// Repair undecodable bytes rather than failing; offsets below refer to
	// the repaired source.
	if !utf8.Valid(src) {
		src = bytes.ToValidUTF8(src, []byte("�"))
	}

	tree, err := p.inner.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{Path: path, Line: firstErrorLine(root)}
	}

	result := &ParsedFile{}
	// Shebangs and leading comments surface as comment nodes; the docstring
	// slot stays open until the first real statement.
	docstringSlot := true
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		switch child.Type() {
		case "expression_statement":
			// A string as the first statement is the module docstring.
			if docstringSlot {
				if s := stringExpr(child, src); s != "" {
					result.ModuleDocstring = unquoteDocstring(s)
				}
			}

		case "import_statement":
			result.Imports = append(result.Imports, importedModules(child, src)...)

		case "import_from_statement":
			if mod := fromImportModule(child, src); mod != "" {
				result.Imports = append(result.Imports, mod)
			}

		case "function_definition":
			result.Functions = append(result.Functions, extractFunction(child, child, src))

		case "class_definition":
			result.Classes = append(result.Classes, extractClass(child, child, src))

		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			switch def.Type() {
			case "function_definition":
				result.Functions = append(result.Functions, extractFunction(def, child, src))
			case "class_definition":
				result.Classes = append(result.Classes, extractClass(def, child, src))
			}
		}
		docstringSlot = false
	}

	return result, nil
}

// extractFunction builds a Function from a function_definition node. outer
// is the span-defining node: the decorated_definition when decorators are
// present, otherwise the definition itself. Nested defs inside the body are
// deliberately not extracted.
func extractFunction(def, outer *sitter.Node, src []byte) Function {
	fn := Function{
		Signature: functionSignature(def, src),
		Source:    outer.Content(src),
		StartLine: int(outer.StartPoint().Row) + 1,
		EndLine:   int(outer.EndPoint().Row) + 1,
	}
	if name := def.ChildByFieldName("name"); name != nil {
		fn.Name = name.Content(src)
	}
	fn.Docstring = bodyDocstring(def.ChildByFieldName("body"), src)
	return fn
}

// extractClass builds a Class from a class_definition node, collecting its
// methods from the class body. Methods stay attached to the class; they are
// never reported as top-level functions.
func extractClass(def, outer *sitter.Node, src []byte) Class {
	cls := Class{
		Source:    outer.Content(src),
		StartLine: int(outer.StartPoint().Row) + 1,
		EndLine:   int(outer.EndPoint().Row) + 1,
	}
	if name := def.ChildByFieldName("name"); name != nil {
		cls.Name = name.Content(src)
	}

	if supers := def.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			cls.Bases = append(cls.Bases, supers.NamedChild(i).Content(src))
		}
	}

	body := def.ChildByFieldName("body")
	if body == nil {
		return cls
	}
	cls.Docstring = bodyDocstring(body, src)

	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		switch stmt.Type() {
		case "function_definition":
			cls.Methods = append(cls.Methods, extractFunction(stmt, stmt, src))
		case "decorated_definition":
			if def := stmt.ChildByFieldName("definition"); def != nil && def.Type() == "function_definition" {
				cls.Methods = append(cls.Methods, extractFunction(def, stmt, src))
			}
		}
	}

	return cls
}

// functionSignature renders "def name(params) -> ret" with parameter
// defaults and annotations preserved as literal text.
func functionSignature(def *sitter.Node, src []byte) string {
	var b strings.Builder
	b.WriteString("def")
	if name := def.ChildByFieldName("name"); name != nil {
		b.WriteString(" ")
		b.WriteString(name.Content(src))
	}
	if params := def.ChildByFieldName("parameters"); params != nil {
		b.WriteString(params.Content(src))
	}
	if ret := def.ChildByFieldName("return_type"); ret != nil {
		b.WriteString(" -> ")
		b.WriteString(ret.Content(src))
	}
	return b.String()
}

// bodyDocstring returns the docstring of a function or class body: the
// string literal in its first statement, or "" if absent. Comments before
// the docstring are skipped.
func bodyDocstring(body *sitter.Node, src []byte) string {
	if body == nil {
		return ""
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		if stmt.Type() != "expression_statement" {
			return ""
		}
		if s := stringExpr(stmt, src); s != "" {
			return unquoteDocstring(s)
		}
		return ""
	}
	return ""
}

// stringExpr returns the raw text of a string expression statement, or "".
func stringExpr(stmt *sitter.Node, src []byte) string {
	if stmt.NamedChildCount() == 0 {
		return ""
	}
	expr := stmt.NamedChild(0)
	if expr.Type() != "string" && expr.Type() != "concatenated_string" {
		return ""
	}
	return expr.Content(src)
}

// importedModules extracts module names from "import a, b.c as d".
func importedModules(node *sitter.Node, src []byte) []string {
	var modules []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			if m := strings.TrimSpace(child.Content(src)); m != "" {
				modules = append(modules, m)
			}
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				if m := strings.TrimSpace(name.Content(src)); m != "" {
					modules = append(modules, m)
				}
			}
		}
	}
	return modules
}

// fromImportModule extracts the module name from "from a.b import c".
func fromImportModule(node *sitter.Node, src []byte) string {
	mod := node.ChildByFieldName("module_name")
	if mod == nil {
		return ""
	}
	return strings.TrimSpace(mod.Content(src))
}

// unquoteDocstring strips quoting and prefixes from a string literal and
// trims surrounding whitespace.
func unquoteDocstring(s string) string {
	s = strings.TrimSpace(s)
	// String prefixes like r"""...""" or u'...'
	for len(s) > 0 {
		c := s[0]
		if c == 'r' || c == 'R' || c == 'u' || c == 'U' || c == 'b' || c == 'B' || c == 'f' || c == 'F' {
			s = s[1:]
			continue
		}
		break
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}
	return strings.TrimSpace(s)
}

// firstErrorLine walks the tree to the first ERROR or missing node and
// returns its 1-indexed line.
func firstErrorLine(node *sitter.Node) int {
	if node.Type() == "ERROR" || node.IsMissing() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.HasError() {
			return firstErrorLine(child)
		}
	}
	return int(node.StartPoint().Row) + 1
}
