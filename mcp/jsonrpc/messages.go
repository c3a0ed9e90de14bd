package jsonrpc

import "encoding/json"

// Version is the only JSON-RPC version the transports accept.
const Version = "2.0"

// Request represents a JSON-RPC request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r Request) IsNotification() bool {
	return r.ID == nil
}

// Response represents a JSON-RPC response
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewResponse(id any, result any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse builds an error response. An empty message is replaced by
// the code's canonical message.
func NewErrorResponse(id any, code ErrorCode, message string, data any) *Response {
	if message == "" {
		message = code.Message()
	}
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    int(code),
			Message: message,
			Data:    data,
		},
	}
}
