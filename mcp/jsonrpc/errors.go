package jsonrpc

type ErrorCode int

// JSON-RPC 2.0 error codes
const (
	ErrParseError     ErrorCode = -32700
	ErrInvalidRequest ErrorCode = -32600
	ErrMethodNotFound ErrorCode = -32601
	ErrInvalidParams  ErrorCode = -32602
	ErrInternalError  ErrorCode = -32603

	// ErrServerError is the first of the implementation-defined codes (-32000 to -32099).
	ErrServerError ErrorCode = -32000
)

// Message returns the canonical message for a standard code.
func (c ErrorCode) Message() string {
	switch c {
	case ErrParseError:
		return "Parse error"
	case ErrInvalidRequest:
		return "Invalid request"
	case ErrMethodNotFound:
		return "Method not found"
	case ErrInvalidParams:
		return "Invalid params"
	case ErrInternalError:
		return "Internal error"
	default:
		return "Server error"
	}
}
