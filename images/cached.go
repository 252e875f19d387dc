package images

import (
	"context"
	"encoding/json"
	"time"

	"landscout/cache"
	"landscout/models"
)

// Source is anything that resolves a listing's photos.
type Source interface {
	Resolve(ctx context.Context, req Request) models.ImageURLSet
}

// CachedResolver memoises non-empty results for ttl. Empty results are not cached
// so a later call can still find photos that were missing.
type CachedResolver struct {
	src   Source
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedResolver(src Source, c cache.Cache, ttl time.Duration) *CachedResolver {
	return &CachedResolver{src: src, cache: c, ttl: ttl}
}

func (c *CachedResolver) Resolve(ctx context.Context, req Request) models.ImageURLSet {
	key := cacheKey(req)
	if data, ok := c.cache.Get(ctx, key); ok {
		var urls models.ImageURLSet
		if err := json.Unmarshal(data, &urls); err == nil {
			return urls
		}
	}

	urls := c.src.Resolve(ctx, req)
	if len(urls) == 0 {
		return urls
	}
	if data, err := json.Marshal(urls); err == nil {
		c.cache.Set(ctx, key, data, c.ttl)
	}
	return urls
}

func cacheKey(req Request) string {
	return "images:" + req.ArticleNo + ":" + req.PropertyCode + ":" + req.TradeCode + ":" + req.Thumbnail
}
