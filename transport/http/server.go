package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/mcp"
	"github.com/slighter12/dataset-mcp-go/transport/shared"
)

const (
	defaultSessionTTL    = 10 * time.Minute
	defaultSweepInterval = time.Minute
	shutdownTimeout      = 5 * time.Second
)

// Options configures the streamable HTTP server.
type Options struct {
	Addr       string
	ServerInfo mcp.Implementation
	// LoadErrors is the number of tool files that failed discovery; it is
	// reported by /healthz.
	LoadErrors    int
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

type Server struct {
	handler        *shared.Handler
	sessionManager *SessionManager
	options        Options
	echo           *echo.Echo
}

func NewServer(handler *shared.Handler, options Options) *Server {
	if options.SessionTTL <= 0 {
		options.SessionTTL = defaultSessionTTL
	}
	if options.SweepInterval <= 0 {
		options.SweepInterval = defaultSweepInterval
	}
	s := &Server{
		handler:        handler,
		sessionManager: NewSessionManager(),
		options:        options,
		echo:           echo.New(),
	}
	s.setupEcho()
	return s
}

func (s *Server) setupEcho() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				logger.Warn("HTTP request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "error", v.Error)
				return nil
			}
			logger.Debug("HTTP request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, headerSessionID, headerProtocolVersion},
		ExposeHeaders: []string{headerSessionID},
	}))
	RegisterRoutes(s.echo, s)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) SessionManager() *SessionManager {
	return s.sessionManager
}

// Run listens on Options.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.sweepSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Streamable HTTP server starting to listen", "address", s.options.Addr)
		errCh <- s.echo.Start(s.options.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("Streamable HTTP server shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(s.options.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.sessionManager.CleanupSessions(s.options.SessionTTL); removed > 0 {
				logger.Debug("Expired MCP sessions removed", "count", removed)
			}
		}
	}
}
