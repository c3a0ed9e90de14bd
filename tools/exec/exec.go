// Package exec binds tool definitions to subprocesses. Each call starts the
// command, writes one JSON request to its stdin and reads one JSON value from
// its stdout.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"sort"
	"strings"
	"time"

	"github.com/slighter12/dataset-mcp-go/tools/types"
)

// Request is written to the subprocess stdin.
type Request struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	CallID    string         `json:"call_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

const maxStderrInMessage = 2048

// Handler runs one subprocess per invocation.
type Handler struct {
	tool    string
	command string
	args    []string
	env     []string
	dir     string
	timeout time.Duration
}

// Factory builds a Handler from an exec binding.
func Factory(binding types.Binding) (types.Handler, error) {
	command, err := ResolveCommand(binding.Dir, binding.Spec.Command)
	if err != nil {
		return nil, err
	}
	timeout, err := binding.Spec.ParseTimeout()
	if err != nil {
		return nil, err
	}
	return &Handler{
		tool:    binding.ToolName,
		command: command,
		args:    append([]string(nil), binding.Spec.Args...),
		env:     flattenEnv(binding.Spec.Env),
		dir:     binding.Dir,
		timeout: timeout,
	}, nil
}

func (h *Handler) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	callCtx := types.CallContextFrom(ctx)
	payload, err := json.Marshal(Request{
		Tool:      h.tool,
		Arguments: args,
		CallID:    callCtx.CallID,
		SessionID: callCtx.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	// #nosec G204 -- command and args come from the tool-definition file.
	cmd := osexec.CommandContext(ctx, h.command, h.args...)
	cmd.Dir = h.dir
	cmd.Env = append(os.Environ(), h.env...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, types.NewToolError(types.KindExecution,
			fmt.Sprintf("tool %q timed out", h.tool),
			map[string]any{"timeout": true},
		)
	}
	if runErr != nil {
		details := map[string]any{}
		var exitErr *osexec.ExitError
		if errors.As(runErr, &exitErr) {
			details["exit_code"] = exitErr.ExitCode()
		}
		message := fmt.Sprintf("tool %q command failed: %v", h.tool, runErr)
		if text := truncate(strings.TrimSpace(stderr.String()), maxStderrInMessage); text != "" {
			details["stderr"] = text
			message += ": " + text
		}
		return nil, types.NewToolError(types.KindExecution, message, details)
	}

	output := bytes.TrimSpace(stdout.Bytes())
	if len(output) == 0 {
		return nil, fmt.Errorf("tool %q produced no output", h.tool)
	}
	var result any
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("tool %q produced invalid JSON: %w", h.tool, err)
	}
	return result, nil
}

func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
