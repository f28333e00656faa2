package api

import (
	"context"

	"github.com/npezzotti/go-chathub/internal/types"
)

type contextKey string

const userKey contextKey = "user"

func WithUser(ctx context.Context, user types.Identity) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) (types.Identity, bool) {
	user, ok := ctx.Value(userKey).(types.Identity)

	return user, ok
}
