package logger

import (
	"context"
	"log/slog"
)

type userIDKey struct{}

// WithUserID stores the acting user on ctx so every log call made with it
// carries "user_id".
func WithUserID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext returns the user stored by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok
}

// UserIDExtractor is a ContextExtractor for the user stored by WithUserID.
func UserIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return UserID(id), true
}
