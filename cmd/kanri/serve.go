package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kanri/common/version"
	"github.com/bdobrica/Kanri/internal/kanri/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer Matrix messages until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMatrix(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Kanri %s\n", version.Info())

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Kanri: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
