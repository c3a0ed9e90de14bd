package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponseDefaultsMessage(t *testing.T) {
	resp := NewErrorResponse(1, ErrMethodNotFound, "", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Method not found", resp.Error.Message)
	assert.Equal(t, -32601, resp.Error.Code)

	resp = NewErrorResponse(nil, ErrInvalidParams, "bad cursor", nil)
	assert.Equal(t, "bad cursor", resp.Error.Message)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32602,"message":"bad cursor"}}`, string(raw))
}

func TestRequestIsNotification(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &req))
	assert.True(t, req.IsNotification())

	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":0,"method":"ping"}`), &req))
	assert.False(t, req.IsNotification())
}
