package sdk

import (
	"context"
	"os"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slighter12/dataset-mcp-go/config"
	"github.com/slighter12/dataset-mcp-go/logger"
	localmcp "github.com/slighter12/dataset-mcp-go/mcp"
	"github.com/slighter12/dataset-mcp-go/tools"
	"github.com/slighter12/dataset-mcp-go/tools/types"
)

func TestMain(m *testing.M) {
	logger.SetDefault(logger.New(logger.GetLevelFromString("error"), logger.FormatText, os.Stderr))
	os.Exit(m.Run())
}

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(types.Descriptor{
		Name:        "echo",
		Description: "Echo back the message.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"message": {Type: "string"}},
			Required:   []string{"message"},
		},
		Annotations: &localmcp.ToolAnnotations{ReadOnlyHint: true},
		Handler: types.HandlerFunc(func(_ context.Context, args map[string]any) (any, error) {
			return args["message"], nil
		}),
	}))
	require.NoError(t, registry.Register(types.Descriptor{
		Name: "transport",
		Handler: types.HandlerFunc(func(ctx context.Context, _ map[string]any) (any, error) {
			return types.CallContextFrom(ctx).Transport, nil
		}),
	}))
	dispatcher, err := tools.NewDispatcher(registry)
	require.NoError(t, err)

	server := NewServer(dispatcher, localmcp.Implementation{Name: "test", Version: "0.0.1"}, "")
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestSDKListTools(t *testing.T) {
	session := connect(t)
	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	require.Len(t, result.Tools, 2)
	names := []string{result.Tools[0].Name, result.Tools[1].Name}
	assert.ElementsMatch(t, []string{"echo", "transport"}, names)
	for _, tool := range result.Tools {
		if tool.Name == "echo" {
			require.NotNil(t, tool.Annotations)
			assert.True(t, tool.Annotations.ReadOnlyHint)
		}
	}
}

func TestSDKCallTool(t *testing.T) {
	session := connect(t)
	ctx := context.Background()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"message": "hi"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hi", textOf(t, result))

	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "invalid arguments")

	result, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "transport"})
	require.NoError(t, err)
	assert.Equal(t, config.TransportSDKStdio, textOf(t, result))
}
