package types

import (
	"errors"
	"fmt"
)

// Error kinds reported by the dispatcher.
const (
	KindUnknownTool      = "unknown tool"
	KindInvalidArguments = "invalid arguments"
	KindExecution        = "tool execution error"
)

// ToolError is a structured failure a handler wants surfaced verbatim.
type ToolError struct {
	Kind    string
	Message string
	Details map[string]any
}

func (e *ToolError) Error() string {
	if e == nil {
		return "tool error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return fmt.Sprintf("tool error: %s", e.Kind)
	}
	return "tool error"
}

func NewToolError(kind, message string, details map[string]any) *ToolError {
	return &ToolError{Kind: kind, Message: message, Details: details}
}

// NewInvalidArgumentsError reports argument problems a schema cannot express.
func NewInvalidArgumentsError(message string, fields ...string) *ToolError {
	details := map[string]any{}
	if len(fields) > 0 {
		details["fields"] = fields
	}
	return NewToolError(KindInvalidArguments, message, details)
}

func AsToolError(err error) (*ToolError, bool) {
	if err == nil {
		return nil, false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}
