package linkstore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

// CachedStore remembers resolved links. Records are immutable once created,
// so cached entries never go stale; misses are not cached.
type CachedStore struct {
	Store
	cache *lru.Cache[string, remote.Handle]
}

func NewCachedStore(store Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, remote.Handle](size)
	if err != nil {
		return nil, fmt.Errorf("creating link cache: %w", err)
	}
	return &CachedStore{Store: store, cache: cache}, nil
}

func (c *CachedStore) Save(ctx context.Context, id string, h remote.Handle) error {
	if err := c.Store.Save(ctx, id, h); err != nil {
		return err
	}
	c.cache.Add(id, h)
	return nil
}

func (c *CachedStore) Get(ctx context.Context, id string) (remote.Handle, error) {
	if h, ok := c.cache.Get(id); ok {
		return h, nil
	}
	h, err := c.Store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	c.cache.Add(id, h)
	return h, nil
}
