package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/require"
)

func echoSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"message": {Type: "string"},
		},
		Required: []string{"message"},
	}
}

func TestDescriptorPrepare(t *testing.T) {
	d := Descriptor{Name: "echo", InputSchema: echoSchema()}
	require.NoError(t, d.Prepare())
	require.True(t, d.Prepared())

	require.NoError(t, d.ValidateArguments(map[string]any{"message": "hi"}))
	require.Error(t, d.ValidateArguments(map[string]any{}))
	require.Error(t, d.ValidateArguments(map[string]any{"message": 5.0}))
}

func TestDescriptorPrepareDefaultsToEmptyObject(t *testing.T) {
	d := Descriptor{Name: "noop"}
	require.NoError(t, d.Prepare())
	require.Equal(t, "object", d.InputSchema.Type)
	require.NoError(t, d.ValidateArguments(nil))
}

func TestDescriptorPrepareRejects(t *testing.T) {
	bad := Descriptor{Name: "has space"}
	require.ErrorIs(t, bad.Prepare(), ErrInvalidName)

	notObject := Descriptor{Name: "scalar", InputSchema: &jsonschema.Schema{Type: "string"}}
	require.ErrorIs(t, notObject.Prepare(), ErrInvalidSchema)

	unprepared := Descriptor{Name: "raw"}
	require.ErrorIs(t, unprepared.ValidateArguments(nil), ErrInvalidSchema)
}

func TestDescriptorTool(t *testing.T) {
	d := Descriptor{Name: "echo", Title: "Echo", Description: "Echo a message", InputSchema: echoSchema()}
	tool := d.Tool()
	require.Equal(t, "echo", tool.Name)
	require.Equal(t, "Echo", tool.Title)
	require.Same(t, d.InputSchema, tool.InputSchema)
}

func TestHandlerFunc(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, args map[string]any) (any, error) {
		return args["message"], nil
	})
	result, err := h.Invoke(context.Background(), map[string]any{"message": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", result)
}

func TestAsToolError(t *testing.T) {
	wrapped := fmt.Errorf("query: %w", NewInvalidArgumentsError("max_count out of range", "max_count"))
	toolErr, ok := AsToolError(wrapped)
	require.True(t, ok)
	require.Equal(t, KindInvalidArguments, toolErr.Kind)
	require.Equal(t, []string{"max_count"}, toolErr.Details["fields"])

	_, ok = AsToolError(errors.New("plain"))
	require.False(t, ok)
}

func TestCallContext(t *testing.T) {
	require.Equal(t, CallContext{}, CallContextFrom(context.Background()))

	ctx := WithCallContext(context.Background(), CallContext{CallID: "01J", SessionID: "s1", Transport: "stdio"})
	require.Equal(t, "s1", CallContextFrom(ctx).SessionID)
}
