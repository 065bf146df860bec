package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/555Russich/18.fl-auto-response/internal/types"
)

// DefaultCacheTTL is how long a positive membership answer is remembered.
const DefaultCacheTTL = time.Hour

// CachedStore remembers ids known to be present. Ids are never removed from a Store,
// so a cached positive answer cannot become wrong; negative answers always go to the backend.
type CachedStore struct {
	inner Store
	cache *cache.Cache
}

// NewCached wraps inner with a positive-membership cache.
func NewCached(inner Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Has answers from the cache when possible.
func (s *CachedStore) Has(ctx context.Context, id types.RecordID) (bool, error) {
	if _, found := s.cache.Get(id.String()); found {
		return true, nil
	}
	ok, err := s.inner.Has(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.cache.Set(id.String(), struct{}{}, cache.DefaultExpiration)
	}
	return ok, nil
}

// Add writes through to the backend, then caches the id.
func (s *CachedStore) Add(ctx context.Context, id types.RecordID) error {
	if err := s.inner.Add(ctx, id); err != nil {
		return err
	}
	s.cache.Set(id.String(), struct{}{}, cache.DefaultExpiration)
	return nil
}

// Close closes the backend.
func (s *CachedStore) Close() error {
	return s.inner.Close()
}
