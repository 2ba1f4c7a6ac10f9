package auth

import (
	"context"
	"strings"

	obscontext "github.com/smallbiznis/logoforge/internal/observability/context"
)

type emailKey struct{}

// WithIdentity stores the caller on the context. The user id lives in the
// observability context so request logs pick it up.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	ctx = obscontext.WithUserID(ctx, identity.UserID)
	return context.WithValue(ctx, emailKey{}, strings.TrimSpace(identity.Email))
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID := obscontext.UserIDFromContext(ctx)
	return userID, userID != ""
}

func EmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(emailKey{}).(string)
	return value
}

// RequireUser returns the caller id or ErrUnauthenticated.
func RequireUser(ctx context.Context) (string, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
