package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slighter12/dataset-mcp-go/config"
)

// NewConfigCmd creates the "config" command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the server configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	if strings.TrimSpace(path) == "" {
		resolved, err := config.ResolveConfigPath()
		if err != nil {
			return exitError(exitFailure, "resolving config path: %v", err)
		}
		path = resolved
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return exitError(exitFailure, "%s already exists (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(config.NewConfig(), path); err != nil {
		return exitError(exitFailure, "writing config: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	quietLogger(cmd)
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return exitError(exitFailure, "rendering config: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
	return nil
}
