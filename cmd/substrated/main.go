// Command substrated is the reference transport adapter for the
// orchestration substrate: it owns config load, collector init/shutdown,
// and signal handling, and is deliberately thin (§6 "not part of the
// core, kept deliberately small"). Grounded on cmd/nexus/main.go's
// cobra root-command wiring, generalized from a
// multi-channel gateway CLI to a single `serve` entrypoint plus a
// config-validation utility command.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "substrated",
		Short:        "substrated - multi-agent task orchestration substrate",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildValidateConfigCmd())
	return root
}
