package gate

import (
	"context"

	"x402gate/verify"
)

type contextKey string

const contextKeyResult contextKey = "gate.result"

// WithResult attaches the verification snapshot to the request context before
// the downstream handler runs.
func WithResult(ctx context.Context, result *verify.Result) context.Context {
	return context.WithValue(ctx, contextKeyResult, result)
}

// FromContext returns the verification snapshot attached by the gate, if the
// request passed through a restricted route.
func FromContext(ctx context.Context) (*verify.Result, bool) {
	result, ok := ctx.Value(contextKeyResult).(*verify.Result)
	return result, ok
}
