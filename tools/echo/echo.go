// Package echo provides the echo builtin: it returns its message unchanged.
package echo

import (
	"context"
	"strings"

	"github.com/slighter12/dataset-mcp-go/tools/types"
)

// FactoryName is the builtin name tool-definition files bind to.
const FactoryName = "echo"

// Factory builds the echo handler. The optional "prefix" option is prepended
// to every reply.
func Factory(binding types.Binding) (types.Handler, error) {
	prefix := binding.Option("prefix", "")
	return types.HandlerFunc(func(_ context.Context, args map[string]any) (any, error) {
		message, _ := args["message"].(string)
		if prefix == "" {
			return message, nil
		}
		return strings.Join([]string{prefix, message}, ""), nil
	}), nil
}
