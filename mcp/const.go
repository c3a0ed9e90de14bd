package mcp

// ProtocolVersion is the preferred MCP protocol revision.
const ProtocolVersion = "2025-11-25"

// SupportedProtocolVersions lists every revision a client may negotiate.
var SupportedProtocolVersions = []string{
	"2024-11-05",
	"2025-03-26",
	"2025-06-18",
	ProtocolVersion,
}

// Method names handled by the transports.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// ContentTypeText is the only content block kind tool results produce.
const ContentTypeText = "text"
