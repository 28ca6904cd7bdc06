package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/restock-watch/internal/server"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Checks a single URL once and prints the result as JSON",
		Long: `Runs the full check pipeline (cache, probe, render, detect) against
one URL without storing anything, then exits.`,
		Args: cobra.ExactArgs(1),
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	cfg := e.cfg
	cfg.Seed.File = ""
	app, err := server.Build(cmd.Context(), cfg, e.logger, version)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer func() { _ = app.Close(context.Background()) }()

	result, err := app.Service().TestURL(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := struct {
		URL         string `json:"url"`
		Available   bool   `json:"available"`
		Verdict     string `json:"verdict,omitempty"`
		Strategy    string `json:"strategy,omitempty"`
		LatencyMs   int64  `json:"latency_ms"`
		Fingerprint string `json:"fingerprint,omitempty"`
		Error       string `json:"error,omitempty"`
	}{
		URL:         result.URL,
		Available:   result.Available,
		Verdict:     string(result.Verdict),
		Strategy:    result.Strategy,
		LatencyMs:   result.LatencyMs,
		Fingerprint: result.Fingerprint,
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
