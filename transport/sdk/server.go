// Package sdk serves the tool registry through the official MCP Go SDK.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/slighter12/dataset-mcp-go/config"
	"github.com/slighter12/dataset-mcp-go/logger"
	localmcp "github.com/slighter12/dataset-mcp-go/mcp"
	"github.com/slighter12/dataset-mcp-go/tools"
	"github.com/slighter12/dataset-mcp-go/tools/types"
	"github.com/slighter12/dataset-mcp-go/transport/shared"
)

// Server adapts a Dispatcher to an SDK server. Every registry descriptor
// becomes an SDK tool whose handler routes into the dispatcher, so argument
// validation and failure isolation stay in one place.
type Server struct {
	dispatcher *tools.Dispatcher
	server     *mcp.Server
}

func NewServer(dispatcher *tools.Dispatcher, info localmcp.Implementation, instructions string) *Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    info.Name,
		Version: info.Version,
	}, &mcp.ServerOptions{
		Instructions: instructions,
	})

	s := &Server{dispatcher: dispatcher, server: server}
	for _, descriptor := range dispatcher.Registry().List() {
		server.AddTool(sdkTool(descriptor), s.toolHandler(descriptor.Name))
	}
	logger.Debug("SDK server tools added", "count", dispatcher.Registry().Len())
	return s
}

// MCPServer exposes the underlying SDK server, mainly for tests.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Run serves over stdin/stdout until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) RunTransport(ctx context.Context, transport mcp.Transport) error {
	logger.Info("Starting MCP server on the SDK transport", "tools", s.dispatcher.Registry().Len())
	if err := s.server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func sdkTool(descriptor types.Descriptor) *mcp.Tool {
	tool := &mcp.Tool{
		Name:        descriptor.Name,
		Title:       descriptor.Title,
		Description: descriptor.Description,
		InputSchema: descriptor.InputSchema,
	}
	if a := descriptor.Annotations; a != nil {
		tool.Annotations = &mcp.ToolAnnotations{
			Title:           a.Title,
			ReadOnlyHint:    a.ReadOnlyHint,
			DestructiveHint: a.DestructiveHint,
			IdempotentHint:  a.IdempotentHint,
			OpenWorldHint:   a.OpenWorldHint,
		}
	}
	return tool
}

func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				resp := tools.Response{
					Status:  tools.StatusError,
					Kind:    types.KindInvalidArguments,
					Message: fmt.Sprintf("invalid arguments for tool %q: %v", name, err),
					Details: map[string]any{"tool": name},
				}
				return toSDKResult(shared.CallToolResult(resp)), nil
			}
		}

		callCtx := types.CallContext{Transport: config.TransportSDKStdio}
		if req.Session != nil {
			callCtx.SessionID = req.Session.ID()
		}
		ctx = types.WithCallContext(ctx, callCtx)

		resp := s.dispatcher.Dispatch(ctx, tools.Request{Name: name, Arguments: args})
		return toSDKResult(shared.CallToolResult(resp)), nil
	}
}

func toSDKResult(result localmcp.CallToolResult) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(result.Content))
	for _, block := range result.Content {
		content = append(content, &mcp.TextContent{Text: block.Text})
	}
	return &mcp.CallToolResult{
		Content:           content,
		StructuredContent: result.StructuredContent,
		IsError:           result.IsError,
	}
}
