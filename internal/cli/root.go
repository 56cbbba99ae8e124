// Package cli implements the semdex command-line interface.
package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"semdex/internal/config"
	"semdex/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string
	debug   bool

	// cfg is loaded once in PersistentPreRunE and passed down by value;
	// nothing reads configuration through a global.
	cfg *config.Config
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

var rootCmd = &cobra.Command{
	Use:   "semdex [query]",
	Short: "Semantic search over Python codebases",
	Long: `semdex indexes Python source code into semantic chunks (functions,
classes, module docstrings, imports), embeds them with a local or cloud
model, and answers natural-language queries by vector similarity.

Examples:
  # Index the current directory
  semdex index .

  # Search the index
  semdex "where is the config file parsed"

  # Show what is indexed
  semdex status`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runSearch(cmd.Context(), args[0])
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetupLogger(debug)

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		log.Debug("Configuration loaded", "provider", cfg.Embeddings.Provider)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.SetupLogger(false)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/semdex/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("semdex %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}
