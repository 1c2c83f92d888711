package metadata

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedSource memoizes another Source in a bounded LRU. Errors are not cached.
type CachedSource struct {
	next  Source
	cache *lru.Cache[string, Deps]
}

// NewCachedSource wraps next with an LRU of the given size.
func NewCachedSource(next Source, size int) (*CachedSource, error) {
	cache, err := lru.New[string, Deps](size)
	if err != nil {
		return nil, fmt.Errorf("metadata: descriptor cache: %w", err)
	}
	return &CachedSource{next: next, cache: cache}, nil
}

// Dependencies implements Source.
func (c *CachedSource) Dependencies(ctx context.Context, id string) (Deps, error) {
	if d, ok := c.cache.Get(id); ok {
		return d, nil
	}
	d, err := c.next.Dependencies(ctx, id)
	if err != nil {
		return Deps{}, err
	}
	c.cache.Add(id, d)
	return d, nil
}
