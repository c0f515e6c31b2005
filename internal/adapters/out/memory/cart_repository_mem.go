// internal/adapters/out/memory/cart_repository_mem.go
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	cartdom "storefront/internal/domain/cart"
)

// CartRepositoryMem implements cart.Repository in process memory.
// Used for local runs (CART_STORE=memory) and tests.
type CartRepositoryMem struct {
	mu    sync.RWMutex
	carts map[string]*cartdom.Cart
}

func NewCartRepositoryMem() *CartRepositoryMem {
	return &CartRepositoryMem{carts: map[string]*cartdom.Cart{}}
}

// GetByID returns (nil, nil) if not found.
func (r *CartRepositoryMem) GetByID(_ context.Context, id string) (*cartdom.Cart, error) {
	key := strings.TrimSpace(id)
	if key == "" {
		return nil, errors.New("cart_repository_mem: id is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[key]
	if !ok {
		return nil, nil
	}
	return cloneCart(c), nil
}

func (r *CartRepositoryMem) Upsert(_ context.Context, c *cartdom.Cart) error {
	if c == nil {
		return errors.New("cart_repository_mem: cart is nil")
	}
	key := strings.TrimSpace(c.ID)
	if key == "" {
		return errors.New("cart_repository_mem: Upsert requires cart.ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[key] = cloneCart(c)
	return nil
}

func (r *CartRepositoryMem) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, strings.TrimSpace(id))
	return nil
}

func (r *CartRepositoryMem) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k, c := range r.carts {
		if c.Expired(before) {
			delete(r.carts, k)
			n++
		}
	}
	return n, nil
}

// Len is the number of stored carts.
func (r *CartRepositoryMem) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.carts)
}

func cloneCart(c *cartdom.Cart) *cartdom.Cart {
	cp := *c
	cp.Items = append([]cartdom.CartItem(nil), c.Items...)
	cp.MergedSessions = append([]string(nil), c.MergedSessions...)
	return &cp
}
