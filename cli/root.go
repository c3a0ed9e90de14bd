// Package cli implements the dataset-mcp command line.
package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/slighter12/dataset-mcp-go/config"
	"github.com/slighter12/dataset-mcp-go/logger"
)

// NewRootCmd builds the command tree. Running the root without a
// subcommand serves, like "serve".
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "dataset-mcp",
		Short: "MCP server that discovers tools from a definitions directory",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				color.NoColor = true
			}
		},
		RunE: runServe,
	}
	root.PersistentFlags().String("config", "", "Path to the config file (JSON or YAML)")
	root.PersistentFlags().String("tools-dir", "", "Tool definitions directory (overrides config)")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")
	addServeFlags(root)

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("dataset-mcp version %s\n", version))

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewConfigCmd())
	return root
}

// loadConfig resolves and loads the config, then applies flag overrides,
// which win over the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if strings.TrimSpace(path) == "" {
		resolved, err := config.ResolveConfigPath()
		if err != nil {
			return nil, "", exitError(exitFailure, "resolving config path: %v", err)
		}
		path = resolved
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, exitError(exitFailure, "loading config: %v", err)
	}

	if dir, _ := cmd.Flags().GetString("tools-dir"); strings.TrimSpace(dir) != "" {
		cfg.Discovery.Dir = dir
	}
	if f := cmd.Flags().Lookup("transport"); f != nil && f.Changed {
		cfg.SelectTransport(f.Value.String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, exitError(exitFailure, "invalid config: %v", err)
	}
	return cfg, path, nil
}

// quietLogger routes logs for one-shot commands to stderr at warn level so
// stdout carries only command output.
func quietLogger(cmd *cobra.Command) {
	logger.SetDefault(logger.New(logger.GetLevelFromString("warn"), logger.FormatText, cmd.ErrOrStderr()))
}
