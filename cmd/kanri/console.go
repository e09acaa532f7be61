package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kanri/internal/kanri/app"
)

var (
	consoleUser string
	consoleName string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with Kanri on the terminal, one message per line",
	Long: `Reads messages from standard input and prints each reply. The task
ledger is the same database serve uses, so a console user with the same
Matrix ID sees the same list.`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().StringVar(&consoleUser, "user", "@console:localhost", "user ID the messages are sent as")
	consoleCmd.Flags().StringVar(&consoleName, "name", "", "display name used in replies (defaults to $USER)")
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Replies go to the terminal, not to Matrix.
	cfg.Matrix.Homeserver = ""
	cfg.HTTPAddr = ""

	name := consoleName
	if name == "" {
		name = os.Getenv("USER")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Kanri: %w", err)
	}
	defer a.Close()

	return a.Console(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), consoleUser, name)
}
