package cache

import (
	"context"
	"time"
)

// Aside implements the cache-aside pattern: try the cache first, fall back to
// load() on a miss and populate the cache with the result.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, load func() error) error {
	if GetJSON(ctx, key, dest) {
		return nil
	}
	if err := load(); err != nil {
		return err
	}
	SetJSON(ctx, key, dest, ttl)
	return nil
}
