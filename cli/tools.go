package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/slighter12/dataset-mcp-go/server"
	"github.com/slighter12/dataset-mcp-go/tools"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and exercise discovered tools",
	}
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsCheckCmd())
	cmd.AddCommand(newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tools discovery would serve",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
}

func newToolsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Discover tools and report per-file load errors",
		Args:  cobra.NoArgs,
		RunE:  runToolsCheck,
	}
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Dispatch one tool call locally and print the response",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsCall,
	}
	cmd.Flags().String("args", "{}", "Tool arguments as a JSON object")
	return cmd
}

func loadApp(cmd *cobra.Command) (*server.App, error) {
	quietLogger(cmd)
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	app, err := server.Load(cmd.Context(), cfg)
	if err != nil {
		return nil, exitError(exitFailure, "%v", err)
	}
	return app, nil
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	app, err := loadApp(cmd)
	if err != nil {
		return err
	}

	descriptors := app.Dispatcher.Registry().List()
	if len(descriptors) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tools found.")
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tDESCRIPTION\tSOURCE")
	for _, d := range descriptors {
		description := firstLine(d.Description)
		if description == "" {
			description = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", d.Name, description, d.Source)
	}
	return writer.Flush()
}

func runToolsCheck(cmd *cobra.Command, _ []string) error {
	app, err := loadApp(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	for _, name := range app.Report.Loaded {
		green.Fprint(out, "  ok    ")
		fmt.Fprintln(out, name)
	}
	for _, module := range app.Report.Skipped {
		yellow.Fprint(out, "  skip  ")
		fmt.Fprintf(out, "%s (no tool declared)\n", module)
	}
	for _, loadErr := range app.Report.Errors {
		red.Fprint(out, "  FAIL  ")
		fmt.Fprintf(out, "%s [%s] %v\n", loadErr.Module, loadErr.Stage, loadErr.Err)
	}

	fmt.Fprintf(out, "\n%d loaded, %d skipped, %d failed in %s\n",
		len(app.Report.Loaded), len(app.Report.Skipped), len(app.Report.Errors), app.Report.Dir)
	if app.Report.HasErrors() {
		return exitError(exitLoadErrors, "%d tool definition(s) failed to load", len(app.Report.Errors))
	}
	return nil
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	rawArgs, _ := cmd.Flags().GetString("args")
	var arguments map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &arguments); err != nil {
		return exitError(exitFailure, "--args must be a JSON object: %v", err)
	}

	app, err := loadApp(cmd)
	if err != nil {
		return err
	}

	resp := app.Dispatcher.Dispatch(cmd.Context(), tools.Request{Name: strings.TrimSpace(args[0]), Arguments: arguments})

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(resp); err != nil {
		return exitError(exitFailure, "encoding response: %v", err)
	}
	if !resp.OK() {
		return exitError(exitToolError, "%s: %s", resp.Kind, resp.Message)
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
