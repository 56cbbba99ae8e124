package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"semdex/internal/embeddings"
	"semdex/internal/index"
	"semdex/internal/mcp"
	"semdex/internal/search"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as a Model Context Protocol server on stdio",
	Long: `Serve semdex_search, semdex_index, and semdex_status as MCP tools
over JSON-RPC on stdin/stdout, for use by AI coding assistants.`,
	Args: cobra.NoArgs,
	RunE: runMCPCmd,
}

func runMCPCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	emb, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}

	idx := index.New(*cfg, emb)
	engine := search.New(*cfg, idx)

	server := mcp.NewServer(*cfg, idx, engine, version)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
