// Package server wires configuration, discovery, dispatch and the selected
// transport into a running MCP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/slighter12/dataset-mcp-go/config"
	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/tools"
	"github.com/slighter12/dataset-mcp-go/tools/echo"
	toolexec "github.com/slighter12/dataset-mcp-go/tools/exec"
	"github.com/slighter12/dataset-mcp-go/tools/scalyr"
	"github.com/slighter12/dataset-mcp-go/transport/http"
	"github.com/slighter12/dataset-mcp-go/transport/sdk"
	"github.com/slighter12/dataset-mcp-go/transport/shared"
	"github.com/slighter12/dataset-mcp-go/transport/stdio"
)

// ErrNoTools is returned when discovery.require_tools is set and no tool
// loaded.
var ErrNoTools = errors.New("no tools loaded")

// App is a loaded server: a frozen registry behind a dispatcher plus the
// discovery report that produced it.
type App struct {
	Config     *config.Config
	Report     tools.Report
	Dispatcher *tools.Dispatcher
}

// NewCatalog returns the handler catalog tool-definition files can bind to.
func NewCatalog(cfg *config.Config) *tools.Catalog {
	catalog := tools.NewCatalog()
	catalog.MustRegister(tools.KindBuiltin, echo.FactoryName, echo.Factory)
	catalog.MustRegister(tools.KindBuiltin, scalyr.FactoryName, scalyr.NewFactory(cfg.Scalyr.Server, cfg.Scalyr.TokenEnv, nil))
	catalog.MustRegister(tools.KindExec, "", toolexec.Factory)
	return catalog
}

// Load discovers tools from cfg.Discovery.Dir and freezes them behind a
// dispatcher. Per-file load errors are kept in the report; only an unusable
// directory, or an empty registry under require_tools, fails.
func Load(ctx context.Context, cfg *config.Config) (*App, error) {
	registry := tools.NewRegistry()
	report, err := tools.Discover(ctx, cfg.Discovery.Dir, NewCatalog(cfg), registry)
	if err != nil {
		return nil, err
	}

	if registry.Len() == 0 {
		if cfg.Discovery.RequireTools {
			return nil, fmt.Errorf("%w from %s", ErrNoTools, cfg.Discovery.Dir)
		}
		logger.Warn("No tools loaded; serving an empty tool list", "dir", cfg.Discovery.Dir)
	}

	dispatcher, err := tools.NewDispatcher(registry, tools.WithDefaultTimeout(cfg.Dispatch.DefaultTimeout.Std()))
	if err != nil {
		return nil, err
	}
	return &App{Config: cfg, Report: report, Dispatcher: dispatcher}, nil
}

// Transport is anything that serves until ctx ends.
type Transport interface {
	Run(ctx context.Context) error
}

// NewTransport builds the transport cfg selects.
func (a *App) NewTransport() (Transport, error) {
	active, ok := a.Config.ActiveTransport()
	if !ok {
		return nil, errors.New("no transport enabled")
	}

	info := a.Config.ServerInfo()
	instructions := a.Config.Description
	switch active.Type {
	case config.TransportStdio:
		return stdio.NewServer(shared.NewHandler(a.Dispatcher, info, instructions), os.Stdin, os.Stdout), nil
	case config.TransportStreamableHTTP:
		return http.NewServer(shared.NewHandler(a.Dispatcher, info, instructions), http.Options{
			Addr:       net.JoinHostPort(a.Config.Server.Host, strconv.Itoa(a.Config.Server.Port)),
			ServerInfo: info,
			LoadErrors: len(a.Report.Errors),
		}), nil
	case config.TransportSDKStdio:
		return sdk.NewServer(a.Dispatcher, info, instructions), nil
	default:
		return nil, fmt.Errorf("invalid transport type: %s", active.Type)
	}
}

// Run serves the selected transport, plus the directory watcher when
// enabled, until ctx is cancelled or the transport stops.
func (a *App) Run(ctx context.Context) error {
	transport, err := a.NewTransport()
	if err != nil {
		return err
	}
	active, _ := a.Config.ActiveTransport()
	logger.Info("Starting MCP server",
		"transport", active.Type,
		"tools", a.Dispatcher.Registry().Len(),
		"load_errors", len(a.Report.Errors),
	)

	var watcher *tools.Watcher
	if a.Config.Discovery.Watch {
		if watcher, err = tools.NewWatcher(a.Config.Discovery.Dir, nil); err != nil {
			return err
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	group.Go(func() error {
		// The watcher is advisory, so the transport finishing ends the run.
		defer stop()
		return transport.Run(ctx)
	})
	if watcher != nil {
		group.Go(func() error {
			return watcher.Run(ctx)
		})
	}
	return group.Wait()
}
