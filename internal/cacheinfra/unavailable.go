package cacheinfra

import (
	"context"
	"time"

	"github.com/goliatone/go-pickup-market/cache"
)

// UnavailableStore is the degraded backend: every read misses and every
// mutation reports failure. It stands in when caching is disabled by
// configuration, and exercises the same code path the service takes when a
// real backend drops its connection.
type UnavailableStore struct{}

var _ cache.Store = (*UnavailableStore)(nil)

func (UnavailableStore) Get(ctx context.Context, key string) (any, bool, error) {
	return nil, false, cache.ErrStoreUnavailable
}

func (UnavailableStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return cache.ErrStoreUnavailable
}

func (UnavailableStore) Del(ctx context.Context, keys ...string) error {
	return cache.ErrStoreUnavailable
}

func (UnavailableStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return nil, cache.ErrStoreUnavailable
}

func (UnavailableStore) Available() bool { return false }
