package cache

import (
	"context"
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrStoreUnavailable is returned by invalidation primitives when the cache
// backend is absent or unreachable. Read paths never surface it: an
// unavailable backend degrades to "always miss".
var ErrStoreUnavailable = errors.New("cache: store unavailable")

// ErrInvalidResultType is returned by the generic GetOrSet wrapper when a
// cached value does not match the requested type.
var ErrInvalidResultType = errors.New("cache: cached value has unexpected type")

// Store is the backend contract: a key/value store with per-entry TTL, bulk
// delete, and glob key enumeration. Implementations must tolerate concurrent
// access. Available reports connectivity; the Service checks it before every
// call so a dead backend costs one method call, not an error path.
type Store interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Available() bool
}

// FetchFn is the function signature the Service expects when fetching from
// the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Recorder receives hit/miss events. The prometheus implementation lives in
// pkg/metrics; tests use counting fakes.
type Recorder interface {
	Hit(key string)
	Miss(key string)
}

// Service implements the cache-aside contract over a Store. The cache is a
// performance layer only: every value is reconstructable from the persistent
// store, Set failures are swallowed, and a missing or unreachable backend
// turns every read into a miss without surfacing errors to callers.
//
// The Service keeps its own registry of keys it has written so that pattern
// invalidation still works against a Store whose Keys enumeration fails.
type Service struct {
	store    Store
	recorder Recorder
	keys     *xsync.Map
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder wires a hit/miss recorder into the service.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService builds a Service over the given store. A nil store is valid and
// yields a fully degraded (always-miss) service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		keys:  xsync.NewMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrSet returns the cached value for key when present, otherwise invokes
// fetch, stores the result with the given TTL on a best-effort basis, and
// returns it. Only fetch errors are surfaced; store errors degrade to a miss.
// Concurrent callers on a cold key may both invoke fetch: last write wins,
// which is acceptable because entries are never authoritative.
func (s *Service) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (any, error)) (any, error) {
	if s.available() {
		if v, ok, err := s.store.Get(ctx, key); err == nil && ok {
			s.hit(key)
			return v, nil
		}
	}
	s.miss(key)

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if s.available() {
		if err := s.store.Set(ctx, key, v, ttl); err == nil {
			s.keys.Store(key, struct{}{})
		}
	}
	return v, nil
}

// GetOrSet is the type-safe wrapper over Service.GetOrSet.
func GetOrSet[T any](ctx context.Context, s *Service, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	result, err := s.GetOrSet(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, ErrInvalidResultType
	}
	return typed, nil
}

// Invalidate removes the given exact keys. It reports ErrStoreUnavailable on
// a degraded backend; callers treat invalidation failure as log-and-continue
// since entries expire by TTL anyway.
func (s *Service) Invalidate(ctx context.Context, keys ...string) error {
	if !s.available() {
		return ErrStoreUnavailable
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		return err
	}
	for _, k := range keys {
		s.keys.Delete(k)
	}
	return nil
}

// InvalidatePattern removes every key matching the glob pattern, e.g.
// "producer:42:*". From the caller's perspective the operation is
// all-or-nothing: either the matching keys are gone or an error is returned.
// It is not atomic against concurrent writers; a racing Set may repopulate a
// key immediately after.
func (s *Service) InvalidatePattern(ctx context.Context, pattern string) error {
	if !s.available() {
		return ErrStoreUnavailable
	}

	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		// Enumeration failed; fall back to the keys this service has written.
		keys = keys[:0]
		s.keys.Range(func(k string, _ any) bool {
			if MatchKey(pattern, k) {
				keys = append(keys, k)
			}
			return true
		})
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		return err
	}
	for _, k := range keys {
		s.keys.Delete(k)
	}
	return nil
}

func (s *Service) available() bool {
	return s.store != nil && s.store.Available()
}

func (s *Service) hit(key string) {
	if s.recorder != nil {
		s.recorder.Hit(key)
	}
}

func (s *Service) miss(key string) {
	if s.recorder != nil {
		s.recorder.Miss(key)
	}
}
