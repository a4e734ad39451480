package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// SessionStateKey is the read-through cache key for the polling API.
func SessionStateKey(sessionID string) string {
	return "session:state:" + sessionID
}
