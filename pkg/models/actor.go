package models

import "context"

// ActorMatcher is the actor recorded on links committed by the automated
// matching pipeline.
const ActorMatcher = "matcher"

// actorKey is the context key for storing the acting identity.
type actorKey struct{}

// WithActor returns a new context carrying the acting identity. Handlers set
// this from the authenticated caller; batch processes set ActorMatcher.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor retrieves the acting identity from the context. Returns the actor
// and true if present, otherwise an empty string and false.
func GetActor(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}
