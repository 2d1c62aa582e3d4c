package main

import (
	"github.com/spf13/cobra"

	"github.com/kestrelai/localrag"
)

// rootFlags are the persistent flags every subcommand inherits to
// build its own *localrag.Engine.
type rootFlags struct {
	configPath string
	dbPath     string
}

var flags rootFlags

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "localrag",
		Short: "localrag - local retrieval-augmented question answering",
		Long:  "localrag ingests documents, answers questions against them, and runs web-grounded search, entirely on local model engines.",
		Example: `  localrag ingest ./report.pdf
  localrag query "what does the report conclude?"
  localrag websearch "latest release notes for project X"
  localrag serve --addr :8080`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "Override the SQLite database path")

	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewQueryCmd())
	cmd.AddCommand(NewWebsearchCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewDocumentsCmd())

	return cmd
}

// loadConfig applies --config and --db on top of the default config.
func loadConfig() (localrag.Config, error) {
	cfg := localrag.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := localrag.LoadConfigFile(cfg, flags.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	return cfg, nil
}

// newEngine builds an *localrag.Engine from the command-line flags.
func newEngine() (*localrag.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return localrag.New(cfg)
}
