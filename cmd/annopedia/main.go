package main

import (
	"fmt"
	"os"

	"annopedia/internal/config"
	"annopedia/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "annopedia",
	Short: "Annopedia - collaborative text annotation backend",
	Long: `Annopedia hosts annotation projects for text classification, machine
translation adequacy and fluency, and named entity recognition.

Administrators create projects, upload unannotated texts and export the
collected entries. Annotators work either publicly or through a private
invitation token.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.L()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the configured service version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.Name, cfg.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	projectsCmd.AddCommand(projectsListCmd, projectsShowCmd)
	projectsListCmd.Flags().StringVar(&projectTypeFilter, "type", "", "Only list projects of this type")
	projectsShowCmd.Flags().IntVar(&wordWrap, "wrap", 80, "Word wrap width for the talk page")

	rootCmd.AddCommand(serveCmd, migrateCmd, projectsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
