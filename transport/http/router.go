package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/slighter12/dataset-mcp-go/config"
	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/mcp"
	"github.com/slighter12/dataset-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/dataset-mcp-go/tools/types"
	"github.com/slighter12/dataset-mcp-go/transport/shared"
)

const maxJSONRPCBodyBytes = 1 << 20

const (
	headerSessionID       = "MCP-Session-Id"
	headerProtocolVersion = "MCP-Protocol-Version"
)

func RegisterRoutes(e *echo.Echo, s *Server) {
	e.GET("/", s.handleHTTPInfo)
	e.GET("/healthz", s.handleHealth)
	e.POST("/mcp", s.handleStreamableHTTPPost)
	e.GET("/mcp", s.handleStreamableHTTPGet)
	e.DELETE("/mcp", s.handleStreamableHTTPDelete)
}

func (s *Server) handleHTTPInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"name":                     s.options.ServerInfo.Name,
		"version":                  s.options.ServerInfo.Version,
		"protocolVersion":          mcp.ProtocolVersion,
		"streamable_http_endpoint": "/mcp",
		"tools":                    s.handler.Dispatcher().Registry().Len(),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	status := "ok"
	if s.options.LoadErrors > 0 {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":      status,
		"tools":       s.handler.Dispatcher().Registry().Len(),
		"load_errors": s.options.LoadErrors,
		"sessions":    s.sessionManager.Count(),
	})
}

func invalidRequest(c echo.Context, status int, message string) error {
	return c.JSON(status, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrInvalidRequest, message, nil))
}

func (s *Server) handleStreamableHTTPPost(c echo.Context) error {
	limitedBody := http.MaxBytesReader(c.Response(), c.Request().Body, maxJSONRPCBodyBytes)
	defer limitedBody.Close()

	body, err := io.ReadAll(limitedBody)
	if err != nil {
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			logger.Warn("Request body too large", "limit_bytes", maxJSONRPCBodyBytes, "remote_addr", c.RealIP())
			return invalidRequest(c, http.StatusRequestEntityTooLarge, "Request body too large")
		}
		logger.Error("Failed to read request body", "error", err)
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrParseError, "Parse error", nil))
	}

	msg, errResp := shared.ParseJSONRPCFrame(body)
	if errResp != nil {
		return c.JSON(http.StatusBadRequest, errResp)
	}

	requestedVersion := strings.TrimSpace(c.Request().Header.Get(headerProtocolVersion))
	if requestedVersion != "" && !mcp.IsSupportedProtocolVersion(requestedVersion) {
		return invalidRequest(c, http.StatusBadRequest, "Unsupported MCP-Protocol-Version header")
	}

	sessionID := strings.TrimSpace(c.Request().Header.Get(headerSessionID))
	isInitialize := msg != nil && msg.Method == mcp.MethodInitialize
	if !isInitialize {
		if sessionID == "" {
			return invalidRequest(c, http.StatusBadRequest, "Missing MCP-Session-Id header")
		}
		if !s.sessionManager.TouchSession(sessionID) {
			return invalidRequest(c, http.StatusNotFound, "Unknown MCP session")
		}
		if session, ok := s.sessionManager.GetSession(sessionID); ok && requestedVersion != "" && requestedVersion != session.ProtocolVersion {
			return invalidRequest(c, http.StatusBadRequest, "Invalid MCP-Protocol-Version header")
		}
	}

	// A response sent by the client has nothing to answer.
	if msg == nil {
		return c.NoContent(http.StatusAccepted)
	}

	ctx := types.WithCallContext(c.Request().Context(), types.CallContext{
		SessionID: sessionID,
		Transport: config.TransportStreamableHTTP,
	})
	response := s.handler.Handle(ctx, *msg)

	if isInitialize && response != nil && response.Error == nil {
		sessionID = uuid.NewString()
		protocolVersion := mcp.ProtocolVersion
		if result, ok := response.Result.(mcp.InitializeResult); ok {
			protocolVersion = result.ProtocolVersion
		}
		s.sessionManager.CreateSession(sessionID, protocolVersion)
		logger.Debug("Generated new MCP session", "session_id", sessionID, "protocol_version", protocolVersion)
	}
	if sessionID != "" {
		c.Response().Header().Set(headerSessionID, sessionID)
	}

	if response == nil {
		return c.NoContent(http.StatusAccepted)
	}
	if prefersEventStream(c.Request().Header.Get(echo.HeaderAccept)) {
		return s.streamResponse(c, response)
	}
	return c.JSON(http.StatusOK, response)
}

// streamResponse writes a single response as one SSE message event.
func (s *Server) streamResponse(c echo.Context, response *jsonrpc.Response) error {
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusOK, response)
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().WriteHeader(http.StatusOK)

	transport := NewStreamableHTTPTransport(c.Response().Writer, flusher)
	defer transport.Close()
	if err := transport.SendSSE("message", response); err != nil {
		logger.Warn("Failed to write SSE response", "error", err)
	}
	return nil
}

// handleStreamableHTTPGet answers 405: the server never initiates messages,
// so there is no standalone stream to open.
func (s *Server) handleStreamableHTTPGet(c echo.Context) error {
	if !acceptsEventStream(c.Request().Header.Get(echo.HeaderAccept)) {
		return invalidRequest(c, http.StatusBadRequest, "Accept header must include text/event-stream")
	}
	c.Response().Header().Set(echo.HeaderAllow, strings.Join([]string{http.MethodPost, http.MethodDelete}, ", "))
	return invalidRequest(c, http.StatusMethodNotAllowed, "Server does not offer an SSE stream")
}

func (s *Server) handleStreamableHTTPDelete(c echo.Context) error {
	sessionID := strings.TrimSpace(c.Request().Header.Get(headerSessionID))
	if sessionID == "" {
		return invalidRequest(c, http.StatusBadRequest, "Missing MCP-Session-Id header")
	}
	if !s.sessionManager.RemoveSession(sessionID) {
		return invalidRequest(c, http.StatusNotFound, "Unknown MCP session")
	}
	logger.Debug("MCP session closed", "session_id", sessionID)
	return c.NoContent(http.StatusNoContent)
}
