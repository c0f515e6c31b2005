// internal/adapters/out/redis/cart_repository_redis.go
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	cartdom "storefront/internal/domain/cart"
)

const (
	cartKeyPrefix = "storefront:cart:"
	// expiryIndexKey is a sorted set of owner keys scored by expiresAt (unix seconds).
	expiryIndexKey = "storefront:cart:expiry"
)

// CartRepositoryRedis stores each cart as a JSON string with a native TTL.
// The expiry index lets DeleteExpired sweep carts whose key Redis has not
// evicted yet and keeps the deleted count observable.
type CartRepositoryRedis struct {
	Client *redis.Client
}

func NewCartRepositoryRedis(client *redis.Client) *CartRepositoryRedis {
	return &CartRepositoryRedis{Client: client}
}

func cartKey(id string) string { return cartKeyPrefix + id }

// GetByID returns (nil, nil) if not found.
func (r *CartRepositoryRedis) GetByID(ctx context.Context, id string) (*cartdom.Cart, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("cart_repository_redis: client is nil")
	}
	key := strings.TrimSpace(id)
	if key == "" {
		return nil, errors.New("cart_repository_redis: id is empty")
	}

	raw, err := r.Client.Get(ctx, cartKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart_repository_redis: get %s: %w", key, err)
	}
	return decodeCart(raw)
}

func (r *CartRepositoryRedis) Upsert(ctx context.Context, c *cartdom.Cart) error {
	if r == nil || r.Client == nil {
		return errors.New("cart_repository_redis: client is nil")
	}
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return errors.New("cart_repository_redis: cart or id is empty")
	}

	raw, err := encodeCart(c)
	if err != nil {
		return err
	}
	key := cartKey(c.ID)

	_, err = r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, raw, 0)
		if !c.ExpiresAt.IsZero() {
			p.ExpireAt(ctx, key, c.ExpiresAt)
			p.ZAdd(ctx, expiryIndexKey, redis.Z{Score: float64(c.ExpiresAt.Unix()), Member: c.ID})
		} else {
			p.ZRem(ctx, expiryIndexKey, c.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cart_repository_redis: upsert %s: %w", c.ID, err)
	}
	return nil
}

// DeleteByID is a no-op when the cart does not exist.
func (r *CartRepositoryRedis) DeleteByID(ctx context.Context, id string) error {
	if r == nil || r.Client == nil {
		return errors.New("cart_repository_redis: client is nil")
	}
	key := strings.TrimSpace(id)
	if key == "" {
		return errors.New("cart_repository_redis: id is empty")
	}

	_, err := r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, cartKey(key))
		p.ZRem(ctx, expiryIndexKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cart_repository_redis: delete %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes carts whose expiresAt is at or before before.
func (r *CartRepositoryRedis) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if r == nil || r.Client == nil {
		return 0, errors.New("cart_repository_redis: client is nil")
	}

	ids, err := r.Client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("cart_repository_redis: scan expiry index: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cartKey(id))
		members = append(members, id)
	}

	var removed *redis.IntCmd
	_, err = r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		removed = p.ZRem(ctx, expiryIndexKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cart_repository_redis: delete expired: %w", err)
	}
	return int(removed.Val()), nil
}

// ------------------------------------------------------------
// codec
// ------------------------------------------------------------

func encodeCart(c *cartdom.Cart) ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("cart_repository_redis: encode %s: %w", c.ID, err)
	}
	return raw, nil
}

func decodeCart(raw []byte) (*cartdom.Cart, error) {
	var c cartdom.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("cart_repository_redis: decode: %w", err)
	}
	c.Items = cartdom.NormalizeItems(c.Items)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	return &c, nil
}
