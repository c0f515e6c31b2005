// internal/adapters/out/redis/product_catalog_redis.go
package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// stockHashKey maps productId -> available stock.
const stockHashKey = "storefront:products:stock"

// ProductCatalogRedis reads available stock from one hash.
type ProductCatalogRedis struct {
	Client *redis.Client
}

func NewProductCatalogRedis(client *redis.Client) *ProductCatalogRedis {
	return &ProductCatalogRedis{Client: client}
}

func (c *ProductCatalogRedis) Availability(ctx context.Context, productID string) (int, bool, error) {
	if c == nil || c.Client == nil {
		return 0, false, errors.New("product_catalog_redis: client is nil")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return 0, false, nil
	}

	n, err := c.Client.HGet(ctx, stockHashKey, pid).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("product_catalog_redis: %s: %w", pid, err)
	}
	return n, true, nil
}

// PutStock seeds or updates a product's stock.
func (c *ProductCatalogRedis) PutStock(ctx context.Context, productID string, stock int) error {
	if c == nil || c.Client == nil {
		return errors.New("product_catalog_redis: client is nil")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return errors.New("product_catalog_redis: productId is empty")
	}
	return c.Client.HSet(ctx, stockHashKey, pid, stock).Err()
}
