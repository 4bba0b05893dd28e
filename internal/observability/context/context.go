// Package context carries request-scoped correlation identifiers.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
	authTypeKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithPrincipal records the authenticated user and how they authenticated (access_token or api_key).
func WithPrincipal(ctx context.Context, userID, authType string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
	return context.WithValue(ctx, authTypeKey, strings.TrimSpace(authType))
}

func PrincipalFromContext(ctx context.Context) (userID, authType string) {
	if ctx == nil {
		return "", ""
	}
	userID, _ = ctx.Value(userIDKey).(string)
	authType, _ = ctx.Value(authTypeKey).(string)
	return userID, authType
}
