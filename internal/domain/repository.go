package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ProductSearcher searches one site for products matching a query.
// A failed search returns a *ScrapeError describing what went wrong.
type ProductSearcher interface {
	Site() string
	Search(ctx context.Context, query string) ([]Product, error)
}
