package credstore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// CachedStore puts an in-memory TTL cache in front of another Store. Concurrent
// lookups of the same uncached name share one backend call.
type CachedStore struct {
	next  Store
	cache *cache.Cache
	group singleflight.Group
}

type cachedSecret struct {
	secret string
	found  bool
}

// NewCachedStore wraps next. Entries, including misses, live for ttl.
func NewCachedStore(next Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Lookup implements Store.
func (s *CachedStore) Lookup(ctx context.Context, name string) (string, bool, error) {
	if v, ok := s.cache.Get(name); ok {
		c := v.(cachedSecret)
		return c.secret, c.found, nil
	}

	v, err, _ := s.group.Do(name, func() (interface{}, error) {
		if v, ok := s.cache.Get(name); ok {
			return v, nil
		}

		secret, found, err := s.next.Lookup(ctx, name)
		if err != nil {
			return nil, err
		}

		c := cachedSecret{secret: secret, found: found}
		s.cache.SetDefault(name, c)
		return c, nil
	})
	if err != nil {
		return "", false, err
	}

	c := v.(cachedSecret)
	return c.secret, c.found, nil
}

// Insert implements Store. The cached entry for name, usually a miss, is
// dropped whatever the outcome.
func (s *CachedStore) Insert(ctx context.Context, name, secret string) error {
	defer s.cache.Delete(name)
	return s.next.Insert(ctx, name, secret)
}

// Close implements Store and closes the wrapped store.
func (s *CachedStore) Close() error {
	s.cache.Flush()
	return s.next.Close()
}
