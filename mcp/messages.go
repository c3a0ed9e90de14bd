package mcp

import (
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool is one entry of a tools/list result.
type Tool struct {
	Name        string             `json:"name"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
	Annotations *ToolAnnotations   `json:"annotations,omitempty"`
}

// ToolAnnotations are advisory hints about tool behavior.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty" yaml:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint,omitempty" yaml:"read_only,omitempty"`
	DestructiveHint *bool  `json:"destructiveHint,omitempty" yaml:"destructive,omitempty"`
	IdempotentHint  bool   `json:"idempotentHint,omitempty" yaml:"idempotent,omitempty"`
	OpenWorldHint   *bool  `json:"openWorldHint,omitempty" yaml:"open_world,omitempty"`
}

// ToolsListResult is the tools/list response payload.
type ToolsListResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams is the tools/call request payload.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content is one content block in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the tools/call response payload.
type CallToolResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError"`
}

// Implementation names a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      Implementation `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

// IsSupportedProtocolVersion reports whether version can be negotiated.
func IsSupportedProtocolVersion(version string) bool {
	return version != "" && slices.Contains(SupportedProtocolVersions, version)
}

// NegotiateProtocolVersion echoes the client's revision when supported and
// falls back to ProtocolVersion otherwise.
func NegotiateProtocolVersion(requested string) string {
	if IsSupportedProtocolVersion(requested) {
		return requested
	}
	return ProtocolVersion
}
