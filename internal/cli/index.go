package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"semdex/internal/embeddings"
	"semdex/internal/index"
	"semdex/internal/ui"
)

var (
	indexForce     bool
	indexDryRun    bool
	indexRecursive bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index the Python files under a directory",
	Long: `Walk a directory, parse every Python file into semantic chunks,
embed the chunks, and persist the index.

Files with syntax errors are skipped and reported; they do not fail the
run. The index is append-only: re-running 'semdex index' embeds the files
again and appends their chunks, keeping earlier ones until 'semdex clear'.
Long-running modes (watch, mcp) skip files whose content is unchanged
since they were last indexed in that session, unless --force is given.

Examples:
  # Index the current directory
  semdex index

  # Re-embed everything
  semdex index --force ./src

  # See what would be indexed without embedding anything
  semdex index --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndexCmd,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "re-embed files even when unchanged")
	indexCmd.Flags().BoolVar(&indexDryRun, "dry-run", false, "walk and parse without embedding or storing")
	indexCmd.Flags().BoolVar(&indexRecursive, "recursive", true, "descend into subdirectories")
}

func runIndexCmd(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	emb, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}

	idx := index.New(*cfg, emb)

	// Extend an existing index rather than starting over.
	if !indexDryRun {
		if err := idx.Load(); err != nil {
			var nf *index.NotFoundError
			if !errors.As(err, &nf) {
				return err
			}
		}
	}

	stats, err := idx.IndexDirectory(ctx, absPath, index.Options{
		Recursive: indexRecursive,
		Force:     indexForce,
		DryRun:    indexDryRun,
		OnProgress: func(processed, total int, file string) {
			fmt.Printf("\r\033[2K%s %s",
				ui.Dim.Render(fmt.Sprintf("[%d/%d]", processed, total)),
				file,
			)
		},
	})
	fmt.Print("\r\033[2K")
	if err != nil {
		return err
	}

	if indexDryRun {
		fmt.Printf("%s %d files would produce %d chunks\n",
			ui.Header.Render("Dry run:"), stats.FilesProcessed, stats.ChunksCreated)
		return nil
	}

	if err := idx.Save(); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	fmt.Printf("%s %d files, %d chunks in %s\n",
		ui.Success.Render("Indexed"),
		stats.FilesProcessed,
		stats.ChunksCreated,
		stats.Duration.Round(time.Millisecond),
	)
	if stats.FilesSkipped > 0 {
		fmt.Printf("%s\n", ui.Dim.Render(fmt.Sprintf("%d files skipped", stats.FilesSkipped)))
	}
	for _, fe := range stats.Errors {
		fmt.Printf("  %s %s: %s\n", ui.Warning.Render("skipped"), fe.Path, fe.Err)
	}
	return nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nInterrupted")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
