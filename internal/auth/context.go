package auth

import (
	"context"

	"academics/internal/principal"
)

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, actor principal.Actor) context.Context {
	return context.WithValue(ctx, callerKey{}, actor)
}

// CallerFrom returns the caller placed on ctx by the guard.
func CallerFrom(ctx context.Context) (principal.Actor, bool) {
	actor, ok := ctx.Value(callerKey{}).(principal.Actor)
	return actor, ok
}
