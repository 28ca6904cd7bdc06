package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/server"
)

const closeTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the monitor and its HTTP control surface",
		Long: `Starts the dispatch loop and the HTTP API. Targets listed in the
seed file are imported first. SIGINT or SIGTERM drains in-flight checks and
shuts down.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	app, err := server.Build(cmd.Context(), e.cfg, e.logger, version)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := app.Close(ctx); cerr != nil {
			e.logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	e.logger.Info("restockwatch starting", zap.String("version", version), zap.Int("port", e.cfg.Server.Port))
	return app.Run(cmd.Context())
}
