// Command kanri runs the Kanri task assistant.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kanri/common/environment"
	"github.com/bdobrica/Kanri/common/redact"
	"github.com/bdobrica/Kanri/internal/kanri/app"
	"github.com/bdobrica/Kanri/internal/kanri/observability"
)

var rootCmd = &cobra.Command{
	Use:   "kanri",
	Short: "Kanri - conversational task assistant",
	Long: `Kanri answers short Portuguese chat messages about a personal task list:
it lists tasks, marks them done, in progress or blocked, and reports progress.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := environment.LoadDotEnv(envFile); err != nil {
			return err
		}
		level := logLevel
		if level == "" {
			level = environment.StringOr("LOG_LEVEL", "info")
		}
		observability.Setup(os.Stderr, level, environment.StringOr("LOG_FORMAT", "text"),
			environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			redact.URLPassword(environment.StringOr("REDIS_URL", "")),
		)
		return nil
	},
}

var (
	envFile  string
	dbPath   string
	logLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database (overrides KANRI_DATABASE_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
