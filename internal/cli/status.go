package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"semdex/internal/embeddings"
	"semdex/internal/index"
	"semdex/internal/ui"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the index contains",
	Args:  cobra.NoArgs,
	RunE:  runStatusCmd,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	emb, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}

	idx := index.New(*cfg, emb)
	if err := idx.Load(); err != nil {
		var nf *index.NotFoundError
		if errors.As(err, &nf) {
			if statusJSON {
				return json.NewEncoder(os.Stdout).Encode(index.Status{
					Provider: string(emb.Provider()),
					Model:    emb.ModelName(),
				})
			}
			fmt.Println(ui.Dim.Render("No index yet. Run `semdex index <path>` to build one."))
			return nil
		}
		return err
	}

	st := idx.Status()
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Println(ui.Header.Render("Index status"))
	fmt.Printf("  %s %d\n", ui.Dim.Render("chunks:    "), st.Chunks)
	fmt.Printf("  %s %d\n", ui.Dim.Render("files:     "), st.Files)
	fmt.Printf("  %s %d\n", ui.Dim.Render("dimensions:"), st.Dimensions)
	fmt.Printf("  %s %s/%s\n", ui.Dim.Render("embeddings:"), st.Provider, st.Model)
	fmt.Printf("  %s %s\n", ui.Dim.Render("location:  "), cfg.Index.Dir)
	return nil
}
