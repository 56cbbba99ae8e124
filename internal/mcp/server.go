package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"semdex/internal/config"
	"semdex/internal/index"
	"semdex/internal/search"
)

const (
	// ProtocolVersion is the MCP revision this server speaks.
	ProtocolVersion = "2024-11-05"

	serverName = "semdex"
)

// Typed tool arguments. Each tool decodes its raw arguments into one of
// these instead of pulling values out of a generic map.

type searchArgs struct {
	Query     string  `json:"query"`
	TopK      int     `json:"top_k,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

type indexArgs struct {
	Path      string `json:"path"`
	Force     bool   `json:"force,omitempty"`
	Recursive *bool  `json:"recursive,omitempty"` // nil means true
}

type statusArgs struct{}

// Server serves MCP requests over stdio, one JSON object per line.
type Server struct {
	cfg     config.Config
	idx     *index.Indexer
	engine  *search.Engine
	version string

	reader *bufio.Reader
	writer io.Writer

	initialized bool
}

// NewServer creates an MCP server bound to stdin/stdout.
func NewServer(cfg config.Config, idx *index.Indexer, engine *search.Engine, version string) *Server {
	return &Server{
		cfg:     cfg,
		idx:     idx,
		engine:  engine,
		version: version,
		reader:  bufio.NewReader(os.Stdin),
		writer:  os.Stdout,
	}
}

// Run processes requests until stdin closes or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				log.Info("MCP server received EOF, shutting down")
				return nil
			}
			log.Error("Failed to read from stdin", "error", err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrorCodeParse, "Parse error", err.Error())
			continue
		}

		s.handleRequest(ctx, req)
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		// Notification; no response.
		s.initialized = true
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	if err != nil {
		s.sendError(req.ID, ErrorCodeInternal, "Internal error", err.Error())
		return
	}
	s.sendResult(req.ID, result)
}

func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
	}, nil
}

func (s *Server) handleListTools() *ListToolsResult {
	return &ListToolsResult{Tools: []Tool{
		{
			Name:        "semdex_search",
			Description: "Search indexed Python code by meaning. Returns the most similar functions, classes, and modules for a natural-language query.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "Natural-language description of the code to find",
					},
					"top_k": {
						Type:        "number",
						Description: "Maximum number of results",
						Default:     config.DefaultTopK,
					},
					"threshold": {
						Type:        "number",
						Description: "Minimum similarity score between 0 and 1",
						Default:     config.DefaultSimilarityThreshold,
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "semdex_index",
			Description: "Index the Python files under a directory so they become searchable.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"path": {
						Type:        "string",
						Description: "Directory to index",
						Default:     ".",
					},
					"force": {
						Type:        "boolean",
						Description: "Re-embed files even when unchanged",
						Default:     false,
					},
					"recursive": {
						Type:        "boolean",
						Description: "Descend into subdirectories",
						Default:     true,
					},
				},
			},
		},
		{
			Name:        "semdex_status",
			Description: "Report the current index contents: chunk count, files, and embedding model.",
			InputSchema: JSONSchema{Type: "object"},
		},
	}}
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	log.Debug("Calling tool", "name", p.Name)

	var text string
	var isError bool

	switch p.Name {
	case "semdex_search":
		text, isError = s.toolSearch(ctx, p.Arguments)
	case "semdex_index":
		text, isError = s.toolIndex(ctx, p.Arguments)
	case "semdex_status":
		text, isError = s.toolStatus(p.Arguments)
	default:
		text, isError = fmt.Sprintf("Unknown tool: %s", p.Name), true
	}

	return &CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: isError,
	}, nil
}

func (s *Server) toolSearch(ctx context.Context, raw json.RawMessage) (string, bool) {
	var args searchArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments: %v", err), true
		}
	}
	if strings.TrimSpace(args.Query) == "" {
		return "Error: query is required", true
	}

	if s.engine.State() != search.StateReady {
		if err := s.engine.Open(ctx); err != nil {
			return formatQueryError(err), true
		}
	}

	results, err := s.engine.Query(ctx, args.Query, search.QueryOptions{
		TopK:      args.TopK,
		Threshold: args.Threshold,
	})
	if err != nil {
		return formatQueryError(err), true
	}
	if len(results) == 0 {
		return "No results above the similarity threshold.", false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s `%s` in %s:%d-%d (%.1f%% match)\n",
			i+1, r.ChunkType, r.Name, r.FilePath, r.StartLine, r.EndLine, r.Similarity*100)
		if r.Docstring != "" {
			fmt.Fprintf(&sb, "%s\n", r.Docstring)
		}
		sb.WriteString(r.Code)
		sb.WriteString("\n\n")
	}
	return sb.String(), false
}

func (s *Server) toolIndex(ctx context.Context, raw json.RawMessage) (string, bool) {
	args := indexArgs{Path: "."}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments: %v", err), true
		}
	}

	absPath, err := filepath.Abs(args.Path)
	if err != nil {
		return fmt.Sprintf("Error: resolve path: %v", err), true
	}

	recursive := args.Recursive == nil || *args.Recursive
	stats, err := s.idx.IndexDirectory(ctx, absPath, index.Options{
		Recursive: recursive,
		Force:     args.Force,
	})
	if err != nil {
		return fmt.Sprintf("Error: indexing failed: %v", err), true
	}
	if err := s.idx.Save(); err != nil {
		return fmt.Sprintf("Error: saving index failed: %v", err), true
	}

	msg := fmt.Sprintf("Indexed %s: %d files, %d chunks", absPath, stats.FilesProcessed, stats.ChunksCreated)
	if len(stats.Errors) > 0 {
		msg += fmt.Sprintf(" (%d files skipped with errors)", len(stats.Errors))
	}
	return msg, false
}

func (s *Server) toolStatus(raw json.RawMessage) (string, bool) {
	var args statusArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments: %v", err), true
		}
	}

	st := s.idx.Status()
	return fmt.Sprintf("Index holds %d chunks from %d files (%d dimensions, %s/%s)",
		st.Chunks, st.Files, st.Dimensions, st.Provider, st.Model), false
}

// formatQueryError renders a query failure for the client, keeping the
// structured code and hint visible.
func formatQueryError(err error) string {
	var qerr *search.QueryError
	if errors.As(err, &qerr) {
		data, merr := json.Marshal(qerr)
		if merr == nil {
			return "Error: " + string(data)
		}
	}
	return "Error: " + err.Error()
}

func (s *Server) sendResult(id, result any) {
	s.send(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(id any, code int, message, data string) {
	s.send(Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}})
}

func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.writer, string(data))
}
