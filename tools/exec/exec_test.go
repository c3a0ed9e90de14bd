package exec

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slighter12/dataset-mcp-go/tools/types"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func newHandler(t *testing.T, dir string, spec types.HandlerSpec) types.Handler {
	t.Helper()
	spec.Type = "exec"
	handler, err := Factory(types.Binding{ToolName: "scripted", Dir: dir, Spec: spec})
	require.NoError(t, err)
	return handler
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec tests need /bin/sh")
	}
}

func TestExecHandlerReturnsStdoutJSON(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	writeScript(t, dir, "reply.sh", "cat")

	handler := newHandler(t, dir, types.HandlerSpec{Command: "./reply.sh"})
	ctx := types.WithCallContext(context.Background(), types.CallContext{CallID: "01TEST", SessionID: "s-1"})
	result, err := handler.Invoke(ctx, map[string]any{"message": "hi"})
	require.NoError(t, err)

	request, ok := result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "scripted", request["tool"])
	require.Equal(t, map[string]any{"message": "hi"}, request["arguments"])
	require.Equal(t, "01TEST", request["call_id"])
	require.Equal(t, "s-1", request["session_id"])
}

func TestExecHandlerPassesEnvAndArgs(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	writeScript(t, dir, "env.sh", `printf '{"greeting":"%s","arg":"%s"}' "$GREETING" "$1"`)

	handler := newHandler(t, dir, types.HandlerSpec{
		Command: "./env.sh",
		Args:    []string{"first"},
		Env:     map[string]string{"GREETING": "hello"},
	})
	result, err := handler.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"greeting": "hello", "arg": "first"}, result)
}

func TestExecHandlerNonZeroExit(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	writeScript(t, dir, "fail.sh", "echo boom >&2\nexit 3")

	handler := newHandler(t, dir, types.HandlerSpec{Command: "./fail.sh"})
	_, err := handler.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)

	toolErr, ok := types.AsToolError(err)
	require.True(t, ok)
	require.Equal(t, types.KindExecution, toolErr.Kind)
	require.Equal(t, 3, toolErr.Details["exit_code"])
	require.Equal(t, "boom", toolErr.Details["stderr"])
	require.Contains(t, toolErr.Message, "boom")
}

func TestExecHandlerTimeout(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	writeScript(t, dir, "slow.sh", "exec sleep 5")

	handler := newHandler(t, dir, types.HandlerSpec{Command: "./slow.sh", Timeout: "100ms"})
	_, err := handler.Invoke(context.Background(), map[string]any{})

	toolErr, ok := types.AsToolError(err)
	require.True(t, ok)
	require.Equal(t, true, toolErr.Details["timeout"])
}

func TestExecHandlerInvalidOutput(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	writeScript(t, dir, "text.sh", "echo not json")

	handler := newHandler(t, dir, types.HandlerSpec{Command: "./text.sh"})
	_, err := handler.Invoke(context.Background(), map[string]any{})
	require.ErrorContains(t, err, "invalid JSON")
}

func TestFactoryRejectsBadBindings(t *testing.T) {
	dir := t.TempDir()

	_, err := Factory(types.Binding{ToolName: "x", Dir: dir, Spec: types.HandlerSpec{Type: "exec"}})
	require.ErrorContains(t, err, "command is required")

	_, err = Factory(types.Binding{ToolName: "x", Dir: dir, Spec: types.HandlerSpec{Type: "exec", Command: "../outside.sh"}})
	require.ErrorContains(t, err, "escapes")

	_, err = Factory(types.Binding{ToolName: "x", Dir: dir, Spec: types.HandlerSpec{Type: "exec", Command: "./missing.sh"}})
	require.Error(t, err)

	skipWithoutShell(t)
	writeScript(t, dir, "ok.sh", "cat")
	_, err = Factory(types.Binding{ToolName: "x", Dir: dir, Spec: types.HandlerSpec{Type: "exec", Command: "./ok.sh", Timeout: "soon"}})
	require.ErrorContains(t, err, "invalid handler timeout")
}
