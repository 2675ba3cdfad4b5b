// Package cacheinfra provides the cache.Store implementations: an in-process
// sturdyc-backed store and a permanently unavailable store used when caching
// is disabled or the backend cannot be reached.
package cacheinfra

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-pickup-market/cache"
)

// entry wraps a cached value with its logical deadline. sturdyc applies one
// TTL per client; the per-call TTLs of the cache contract are enforced here,
// with the client TTL acting as the upper bound.
type entry struct {
	value     any
	expiresAt time.Time
}

// SturdycStore implements cache.Store over an in-process sturdyc client.
type SturdycStore struct {
	client *sturdyc.Client[entry]
}

var _ cache.Store = (*SturdycStore)(nil)

// NewSturdycStore validates the configuration and initializes the client.
// Capacity, NumShards, DefaultTTL and EvictionPercentage map directly onto
// the sturdyc constructor.
func NewSturdycStore(cfg cache.Config) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.DefaultTTL,
		cfg.EvictionPercentage,
		opts...,
	)

	return &SturdycStore{client: client}, nil
}

// Get returns the value for key if present and not past its logical
// deadline. Expired entries are deleted eagerly on read.
func (s *SturdycStore) Get(ctx context.Context, key string) (any, bool, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.client.Delete(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key. A non-positive ttl leaves expiry to the client
// default.
func (s *SturdycStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.client.Set(key, e)
	return nil
}

// Del removes the given keys.
func (s *SturdycStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Keys returns every stored key matching the glob pattern.
func (s *SturdycStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	for _, key := range s.client.ScanKeys() {
		if cache.MatchKey(pattern, key) {
			out = append(out, key)
		}
	}
	return out, nil
}

// Available always reports true: an in-process store has no connectivity to
// lose.
func (s *SturdycStore) Available() bool { return true }
