// Package requestcontext holds request-scoped values set by middleware and
// read by services, without pulling net/http into the service layer.
package requestcontext

import (
	"context"
	"time"

	id "ekyc/pkg/domain"
)

type (
	userIDKey      struct{}
	walletKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
)

// UserID returns the authenticated user, or the nil ID.
func UserID(ctx context.Context) id.UserID {
	if v, ok := ctx.Value(userIDKey{}).(id.UserID); ok {
		return v
	}
	return id.UserID{}
}

func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// Wallet returns the wallet bound to the token, if any.
func Wallet(ctx context.Context) id.WalletAddress {
	if v, ok := ctx.Value(walletKey{}).(id.WalletAddress); ok {
		return v
	}
	return ""
}

func WithWallet(ctx context.Context, w id.WalletAddress) context.Context {
	return context.WithValue(ctx, walletKey{}, w)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request's pinned time, or time.Now when none was set.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return v
	}
	return time.Now()
}

// WithTime pins the clock for everything downstream. Tests use it for
// deterministic timestamps.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}
