package brickz

import "context"

// invocationKey marks a context as belonging to an in-flight invocation.
// Every connector stamps the context it hands to children, so InvokeSync
// can detect that it is being called from inside a running chain.
type invocationKey struct{}

// markInvoking stamps ctx as carrying an active invocation. Idempotent.
func markInvoking(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(invocationKey{}) != nil {
		return ctx
	}
	return context.WithValue(ctx, invocationKey{}, true)
}

// isInvoking reports whether ctx belongs to an in-flight invocation.
func isInvoking(ctx context.Context) bool {
	return ctx != nil && ctx.Value(invocationKey{}) != nil
}

// InvokeSync blocks until the brick's Invoke completes and returns its
// result. It is a bridge for call sites that cannot thread a context
// through, such as CLI handlers or tests; Invoke remains the single source
// of truth and InvokeSync never produces a different result for the same
// input.
//
// Calling InvokeSync with a context that already belongs to an in-flight
// invocation returns a *ConcurrencyError instead of deadlocking: the chain
// that stamped the context is synchronous, so blocking on a nested
// completion inside it can never make progress. Pass the ambient context
// to Invoke directly in that position.
//
// A nil context is treated as context.Background().
func InvokeSync[In, Out any](ctx context.Context, b Brick[In, Out], input In, deps Deps) (Out, error) {
	if isInvoking(ctx) {
		var zero Out
		return zero, &ConcurrencyError{Brick: b.Name()}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return b.Invoke(ctx, input, deps)
}
