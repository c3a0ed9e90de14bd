package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/mcp"
	"github.com/slighter12/dataset-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/dataset-mcp-go/tools"
)

const pageSize = 50

// Handler answers the JSON-RPC methods every transport shares. It holds no
// per-session state.
type Handler struct {
	dispatcher   *tools.Dispatcher
	serverInfo   mcp.Implementation
	instructions string
}

func NewHandler(dispatcher *tools.Dispatcher, serverInfo mcp.Implementation, instructions string) *Handler {
	return &Handler{
		dispatcher:   dispatcher,
		serverInfo:   serverInfo,
		instructions: instructions,
	}
}

// Dispatcher returns the dispatcher tool calls are routed to.
func (h *Handler) Dispatcher() *tools.Dispatcher {
	return h.dispatcher
}

// HandleFrame parses one frame and answers it. A nil response means nothing
// should be written back (notifications and client responses).
func (h *Handler) HandleFrame(ctx context.Context, frame []byte) *jsonrpc.Response {
	msg, errResp := ParseJSONRPCFrame(frame)
	if errResp != nil {
		return errResp
	}
	if msg == nil {
		return nil
	}
	return h.Handle(ctx, *msg)
}

// Handle answers one parsed request. A panic while answering becomes an
// internal error response.
func (h *Handler) Handle(ctx context.Context, msg jsonrpc.Request) (response *jsonrpc.Response) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("Panic while handling JSON-RPC message", "method", msg.Method, "panic", fmt.Sprint(recovered))
			response = nil
			if !msg.IsNotification() {
				response = jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrInternalError, "", nil)
			}
		}
	}()
	logger.Debug("JSON-RPC message received", "method", msg.Method, "notification", msg.IsNotification())

	switch msg.Method {
	case mcp.MethodInitialize:
		return BuildInitializeResponse(msg, h.serverInfo, h.instructions)
	case mcp.MethodInitialized:
		return nil
	case mcp.MethodPing:
		return BuildPingResponse(msg)
	case mcp.MethodToolsList:
		return BuildToolsListResponse(msg, h.dispatcher.Registry().Tools())
	case mcp.MethodToolsCall:
		if msg.IsNotification() {
			return nil
		}
		return BuildToolCallResponse(ctx, msg, h.dispatcher)
	default:
		if msg.IsNotification() {
			return nil
		}
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrMethodNotFound, "Method not found", map[string]any{
			"method": msg.Method,
		})
	}
}

func BuildInitializeResponse(msg jsonrpc.Request, serverInfo mcp.Implementation, instructions string) *jsonrpc.Response {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrInvalidParams, "Invalid initialize payload", nil)
		}
	}
	return jsonrpc.NewResponse(msg.ID, mcp.InitializeResult{
		ProtocolVersion: mcp.NegotiateProtocolVersion(params.ProtocolVersion),
		Capabilities:    ServerCapabilities(),
		ServerInfo:      serverInfo,
		Instructions:    instructions,
	})
}

func BuildPingResponse(msg jsonrpc.Request) *jsonrpc.Response {
	return jsonrpc.NewResponse(msg.ID, map[string]any{})
}

// BuildToolsListResponse pages through tools in the order given.
func BuildToolsListResponse(msg jsonrpc.Request, toolList []mcp.Tool) *jsonrpc.Response {
	start, err := ParseCursor(msg.Params, len(toolList))
	if err != nil {
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrInvalidParams, err.Error(), nil)
	}
	end := min(start+pageSize, len(toolList))

	result := mcp.ToolsListResult{Tools: toolList[start:end]}
	if end < len(toolList) {
		result.NextCursor = strconv.Itoa(end)
	}
	return jsonrpc.NewResponse(msg.ID, result)
}

// BuildToolCallResponse routes a tools/call request to the dispatcher. Tool
// failures, including unknown tools and invalid arguments, are reported
// in-band with isError; only a malformed payload is a JSON-RPC error.
func BuildToolCallResponse(ctx context.Context, msg jsonrpc.Request, dispatcher *tools.Dispatcher) *jsonrpc.Response {
	var params mcp.CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrInvalidParams, "Invalid tool call payload", nil)
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrInvalidParams, "Tool name is required", nil)
	}

	resp := dispatcher.Dispatch(ctx, tools.Request{Name: params.Name, Arguments: params.Arguments})
	if !resp.OK() {
		logger.Debug("Tool call returned error", "tool", params.Name, "kind", resp.Kind, "call_id", resp.CallID)
	}
	return jsonrpc.NewResponse(msg.ID, CallToolResult(resp))
}

// CallToolResult maps a dispatcher response onto the MCP result shape.
func CallToolResult(resp tools.Response) mcp.CallToolResult {
	if resp.OK() {
		return mcp.CallToolResult{
			Content:           []mcp.Content{{Type: mcp.ContentTypeText, Text: ResultText(resp.Result)}},
			StructuredContent: StructuredResult(resp.Result),
			IsError:           false,
		}
	}
	return mcp.CallToolResult{
		Content:           []mcp.Content{{Type: mcp.ContentTypeText, Text: resp.Message}},
		StructuredContent: ErrorPayload(resp),
		IsError:           true,
	}
}

// ResultText renders a tool result as text content. Strings are passed
// through; everything else is JSON.
func ResultText(result any) string {
	if text, ok := result.(string); ok {
		return text
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "tool call completed"
	}
	return string(resultJSON)
}

// StructuredResult returns result as a JSON object, wrapping non-object
// values under "result".
func StructuredResult(result any) map[string]any {
	if object, ok := result.(map[string]any); ok {
		return object
	}
	raw, err := json.Marshal(result)
	if err == nil {
		var object map[string]any
		if json.Unmarshal(raw, &object) == nil && object != nil {
			return object
		}
	}
	return map[string]any{"result": result}
}

// ErrorPayload is the structured form of an error response.
func ErrorPayload(resp tools.Response) map[string]any {
	payload := map[string]any{
		"status":  resp.Status,
		"kind":    resp.Kind,
		"message": resp.Message,
	}
	if len(resp.Details) > 0 {
		payload["details"] = resp.Details
	}
	return payload
}

func ServerCapabilities() map[string]any {
	return map[string]any{
		"tools": map[string]any{"listChanged": false},
	}
}

func ParseCursor(paramsRaw json.RawMessage, total int) (int, error) {
	if len(paramsRaw) == 0 {
		return 0, nil
	}

	var params struct {
		Cursor string `json:"cursor"`
	}
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return 0, fmt.Errorf("invalid params payload")
	}
	if strings.TrimSpace(params.Cursor) == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(params.Cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor value")
	}
	if offset < 0 || offset > total {
		return 0, fmt.Errorf("invalid cursor value")
	}
	return offset, nil
}

// ParseJSONRPCFrame validates and parses one JSON-RPC message frame. Batches
// are rejected. It returns (nil, nil) for a well-formed response sent by the
// client, which needs no answer.
func ParseJSONRPCFrame(frame []byte) (*jsonrpc.Request, *jsonrpc.Response) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrInvalidRequest, "Invalid request", nil)
	}

	if trimmed[0] == '[' {
		return nil, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrInvalidRequest, "Batch requests are not supported", nil)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrParseError, "Parse error", nil)
	}

	requestID, hasID, validID := parseIDFromEnvelope(envelope)
	if !validID {
		return nil, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrInvalidRequest, "Invalid request", nil)
	}

	var msg jsonrpc.Request
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, jsonrpc.NewErrorResponse(requestID, jsonrpc.ErrInvalidRequest, "Invalid request", nil)
	}
	msg.ID = requestID

	if msg.Method == "" {
		_, hasResult := envelope["result"]
		_, hasErr := envelope["error"]
		if hasResult || hasErr {
			if msg.JSONRPC != jsonrpc.Version || !hasID || (hasResult && hasErr) {
				return nil, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrInvalidRequest, "Invalid request", nil)
			}
			return nil, nil
		}
		return nil, jsonrpc.NewErrorResponse(requestID, jsonrpc.ErrInvalidRequest, "Invalid request", nil)
	}

	if msg.JSONRPC != jsonrpc.Version {
		return nil, jsonrpc.NewErrorResponse(requestID, jsonrpc.ErrInvalidRequest, "Invalid request", nil)
	}

	if rawParams, ok := envelope["params"]; ok && !isValidParamsValue(rawParams) {
		return nil, jsonrpc.NewErrorResponse(requestID, jsonrpc.ErrInvalidRequest, "Invalid request", nil)
	}

	if msg.Method == mcp.MethodInitialize && msg.ID == nil {
		return nil, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrInvalidRequest, "Invalid request", nil)
	}

	return &msg, nil
}

func parseIDFromEnvelope(envelope map[string]json.RawMessage) (any, bool, bool) {
	rawID, exists := envelope["id"]
	if !exists {
		return nil, false, true
	}
	trimmed := bytes.TrimSpace(rawID)
	if len(trimmed) == 0 {
		return nil, true, false
	}

	var id any
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&id); err != nil {
		return nil, true, false
	}
	if !isValidJSONRPCID(id) {
		return nil, true, false
	}
	return id, true, true
}

func isValidJSONRPCID(id any) bool {
	switch v := id.(type) {
	case string:
		return true
	case json.Number:
		return isJSONInteger(v.String())
	default:
		return false
	}
}

func isValidParamsValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{'
}

func isJSONInteger(value string) bool {
	if value == "" || strings.ContainsAny(value, ".eE") {
		return false
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	if strings.HasPrefix(value, "-") {
		return false
	}
	_, err := strconv.ParseUint(value, 10, 64)
	return err == nil
}
