package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/cobra"

	"semdex/internal/embeddings"
	"semdex/internal/index"
	"semdex/internal/search"
	"semdex/internal/ui"
)

var (
	searchTopK      int
	searchThreshold float64
	searchJSON      bool
	searchNoCode    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index with a natural-language query",
	Long: `Find code by meaning. The query is embedded with the same model as
the index and matched against every chunk by vector similarity.

Examples:
  # Basic search
  semdex search "where are users authenticated"

  # More results, lower bar
  semdex search "database retry logic" -k 10 -t 0.1

  # Machine-readable output
  semdex search "http handlers" --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd.Context(), args[0])
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", 0, "minimum similarity 0-1 (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchNoCode, "no-code", false, "hide code bodies in results")
}

func runSearch(ctx context.Context, query string) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()

	emb, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}

	idx := index.New(*cfg, emb)
	engine := search.New(*cfg, idx)

	if err := engine.Open(ctx); err != nil {
		return renderQueryError(err)
	}

	results, err := engine.Query(ctx, query, search.QueryOptions{
		TopK:      searchTopK,
		Threshold: searchThreshold,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return renderQueryError(err)
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results above the similarity threshold.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Printf("%s %s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			ui.ChunkKind.Render(r.ChunkType),
			ui.FormatLocation(r.FilePath, r.StartLine, r.EndLine),
			ui.FormatScore(r.Similarity),
		)
		if r.Name != "" {
			fmt.Printf("    %s\n", ui.Bold.Render(r.Name))
		}
		if r.Docstring != "" {
			fmt.Printf("    %s\n", ui.Dim.Render(firstLine(r.Docstring)))
		}
		if !searchNoCode && r.Code != "" {
			fmt.Println()
			printHighlighted(r.Code, r.StartLine)
		}
		fmt.Println()
	}
	return nil
}

// renderQueryError prints a structured query failure with its hint and
// returns a terse error for the exit status.
func renderQueryError(err error) error {
	var qerr *search.QueryError
	if errors.As(err, &qerr) {
		fmt.Fprintln(os.Stderr, ui.Error.Render(qerr.Message))
		if qerr.Hint != "" {
			fmt.Fprintln(os.Stderr, ui.Dim.Render(qerr.Hint))
		}
		return fmt.Errorf("%s", qerr.Code)
	}
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// printHighlighted renders Python code with syntax colors and line numbers,
// falling back to plain text when highlighting fails.
func printHighlighted(code string, startLine int) {
	lexer := lexers.Get("python")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		printPlain(code, startLine)
		return
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		printPlain(code, startLine)
		return
	}

	for i, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		fmt.Printf("    %s %s\n", ui.LineNum.Render(fmt.Sprintf("%4d│", startLine+i)), line)
	}
}

func printPlain(code string, startLine int) {
	for i, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		fmt.Printf("    %s %s\n", ui.LineNum.Render(fmt.Sprintf("%4d│", startLine+i)), line)
	}
}
