package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextUserKey    ctxKey = "user_id"
	ContextSessionKey ctxKey = "session_id"
)

// DefaultStoreTimeout bounds every storage round trip when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if userID, ok := ctx.Value(ContextUserKey).(string); ok {
		return userID
	}
	return ""
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextUserKey, userID)
}

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sid, ok := ctx.Value(ContextSessionKey).(string); ok {
		return sid
	}
	return ""
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextSessionKey, sessionID)
}

// WithTimeout returns a context with timeout, defaulting to DefaultStoreTimeout if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, duration)
}

// Detach keeps the values carried by ctx but drops its deadline and cancellation.
func Detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
