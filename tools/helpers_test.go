package tools

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/require"

	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/tools/echo"
	"github.com/slighter12/dataset-mcp-go/tools/types"
)

func TestMain(m *testing.M) {
	logger.SetDefault(logger.New(logger.GetLevelFromString("error"), logger.FormatText, os.Stderr))
	os.Exit(m.Run())
}

const echoDefinition = `name: echo
description: Echo back the message.
input_schema:
  type: object
  properties:
    message:
      type: string
  required: [message]
handler:
  type: builtin
  name: echo
`

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// testCatalog knows the echo builtin plus "boom", whose factory panics, and
// "counter", which records invocations in calls.
func testCatalog(t *testing.T, calls *atomic.Int64) *Catalog {
	t.Helper()
	catalog := NewCatalog()
	require.NoError(t, catalog.Register(KindBuiltin, echo.FactoryName, echo.Factory))
	require.NoError(t, catalog.Register(KindBuiltin, "boom", func(types.Binding) (types.Handler, error) {
		panic("import-time failure")
	}))
	require.NoError(t, catalog.Register(KindBuiltin, "counter", func(types.Binding) (types.Handler, error) {
		return types.HandlerFunc(func(context.Context, map[string]any) (any, error) {
			if calls != nil {
				calls.Add(1)
			}
			return "counted", nil
		}), nil
	}))
	return catalog
}

func objectSchema(required ...string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(required))
	for _, name := range required {
		properties[name] = &jsonschema.Schema{Type: "string"}
	}
	return &jsonschema.Schema{Type: "object", Properties: properties, Required: required}
}

func descriptor(name string, handler types.HandlerFunc, required ...string) types.Descriptor {
	return types.Descriptor{
		Name:        name,
		Description: name + " tool",
		InputSchema: objectSchema(required...),
		Handler:     handler,
		Source:      name + ".tool",
	}
}
