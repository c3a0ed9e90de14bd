package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNegotiateProtocolVersion(t *testing.T) {
	assert.Equal(t, "2025-03-26", NegotiateProtocolVersion("2025-03-26"))
	assert.Equal(t, ProtocolVersion, NegotiateProtocolVersion(""))
	assert.Equal(t, ProtocolVersion, NegotiateProtocolVersion("1999-01-01"))
	assert.False(t, IsSupportedProtocolVersion(""))
}
