package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"semdex/internal/embeddings"
	"semdex/internal/index"
	"semdex/internal/ui"
	"semdex/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a directory and keep the index in sync",
	Long: `Index a directory, then watch it for changes and re-index modified
Python files automatically. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
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
	if err := idx.Load(); err != nil {
		var nf *index.NotFoundError
		if !errors.As(err, &nf) {
			return err
		}
	}

	// Bring the index up to date before watching.
	stats, err := idx.IndexDirectory(ctx, absPath, index.Options{Recursive: true})
	if err != nil {
		return err
	}
	if err := idx.Save(); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	fmt.Printf("%s %d files, %d chunks. Watching %s\n",
		ui.Success.Render("Indexed"), stats.FilesProcessed, stats.ChunksCreated, absPath)

	w, err := watcher.New(absPath, idx, *cfg,
		watcher.WithEventCallback(func(event, file string) {
			fmt.Printf("%s %s\n", ui.Dim.Render(event), file)
		}),
	)
	if err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
