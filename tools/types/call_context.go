package types

import "context"

// CallContext carries per-call metadata from the transport and dispatcher to
// handlers without polluting tool arguments.
type CallContext struct {
	CallID    string
	SessionID string
	Transport string
}

type callContextKey struct{}

func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

// CallContextFrom returns the CallContext stored in ctx, or the zero value.
func CallContextFrom(ctx context.Context) CallContext {
	if ctx == nil {
		return CallContext{}
	}
	cc, _ := ctx.Value(callContextKey{}).(CallContext)
	return cc
}
