package cli

import (
	"github.com/spf13/cobra"

	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Discover tools and serve them over the configured transport",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("transport", "", "Transport to serve: stdio | streamable_http | sdk_stdio")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.GetLevelFromString(cfg.Logging.Level), logger.Format(cfg.Logging.Format), cfg.Logging.Path); err != nil {
		return exitError(exitFailure, "initializing logger: %v", err)
	}
	defer logger.Default().Close()
	logger.Debug("Configuration loaded", "path", path, "tools_dir", cfg.Discovery.Dir)

	app, err := server.Load(cmd.Context(), cfg)
	if err != nil {
		logger.Error("Tool discovery failed", "error", err)
		return exitError(exitFailure, "%v", err)
	}

	if err := app.Run(cmd.Context()); err != nil {
		logger.Error("Server error", "error", err)
		return exitError(exitFailure, "%v", err)
	}
	return nil
}
