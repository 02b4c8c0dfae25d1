package redis

import (
	"context"
	"errors"
	"time"
)

// windowStore is the part of Client a fixed-window limiter needs.
type windowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// WindowLimiter admits at most limit calls per window for one scope across all processes.
type WindowLimiter struct {
	store  windowStore
	scope  string
	limit  int64
	window time.Duration
}

// NewWindowLimiter builds a limiter over the shared redis counter for scope.
func NewWindowLimiter(store windowStore, scope string, limit int64, window time.Duration) (*WindowLimiter, error) {
	if store == nil {
		return nil, errors.New("redis client required for limiter")
	}
	if scope == "" {
		return nil, errors.New("limiter scope is required")
	}
	if limit <= 0 {
		return nil, errors.New("limiter limit must be positive")
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{store: store, scope: scope, limit: limit, window: window}, nil
}

// Allow consumes one call from the current window.
func (l *WindowLimiter) Allow(ctx context.Context) (bool, error) {
	allowed, _, err := l.store.FixedWindowAllow(ctx, l.scope, l.limit, l.window)
	return allowed, err
}
