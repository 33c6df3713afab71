package authz

import (
	"context"
	"strings"
)

type ctxKey string

const (
	actorIDKey ctxKey = "authz_actor_id"
	scopesKey  ctxKey = "authz_scopes"
)

// ContextWithActor stores the authenticated actor in the context.
func ContextWithActor(ctx context.Context, userID string, scopes []string) context.Context {
	ctx = context.WithValue(ctx, actorIDKey, strings.TrimSpace(userID))
	if len(scopes) > 0 {
		ctx = context.WithValue(ctx, scopesKey, dedupeKeys(scopes))
	}
	return ctx
}

// ActorIDFromContext extracts the authenticated actor id from context.
func ActorIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// ScopesFromContext returns the token scopes stored in context.
func ScopesFromContext(ctx context.Context) []string {
	v, ok := ctx.Value(scopesKey).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// HasScope checks whether the context carries the given token scope.
func HasScope(ctx context.Context, scope string) bool {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return false
	}
	for _, s := range ScopesFromContext(ctx) {
		if s == scope {
			return true
		}
	}
	return false
}
