package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"semdex/internal/embeddings"
	"semdex/internal/index"
	"semdex/internal/ui"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted index",
	Args:  cobra.NoArgs,
	RunE:  runClearCmd,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
}

func runClearCmd(cmd *cobra.Command, args []string) error {
	if !clearYes {
		fmt.Printf("Delete the index at %s? [y/N] ", cfg.Index.Dir)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	emb, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}

	if err := index.New(*cfg, emb).Clear(); err != nil {
		return err
	}
	fmt.Println(ui.Success.Render("Index cleared."))
	return nil
}
