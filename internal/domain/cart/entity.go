// internal/domain/cart/entity.go
package cart

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidCart    = errors.New("cart: invalid")
	ErrUnknownProduct = errors.New("cart: unknown product")
	ErrOutOfStock     = errors.New("cart: out of stock")
)

// DefaultCartTTL is the inactivity window after which an account cart becomes
// eligible for auto deletion (Firestore TTL is configured on expiresAt).
const DefaultCartTTL = 7 * 24 * time.Hour

// DefaultGuestCartTTL is the same window for guest carts. Guest carts are
// keyed by a tab-scoped session id, so they go stale much sooner.
const DefaultGuestCartTTL = 48 * time.Hour

// CartItem is one line item. Uniqueness is defined by ProductID.
type CartItem struct {
	ProductID string `json:"productId" firestore:"productId"`
	Qty       int    `json:"quantity" firestore:"qty"`
}

// Cart is one cart document.
//   - ID is the owner key (see UserKey / GuestKey), also the Firestore docId.
//   - Items are normalized: unique by ProductID, qty > 0, sorted by ProductID.
//   - ExpiresAt is refreshed on each mutation.
type Cart struct {
	ID    string     `json:"id" firestore:"id"`
	Items []CartItem `json:"items" firestore:"items"`

	// MergedSessions remembers the most recent guest sessions folded into
	// this cart so a retried merge is not applied twice.
	MergedSessions []string `json:"mergedSessions,omitempty" firestore:"mergedSessions"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt" firestore:"expiresAt"`
}

// MaxMergedSessions bounds Cart.MergedSessions.
const MaxMergedSessions = 20

// NewCart creates a new cart doc for the owner key id.
// items can be nil (treated as empty).
func NewCart(id string, items []CartItem, now time.Time) (*Cart, error) {
	c := &Cart{
		ID:        strings.TrimSpace(id),
		Items:     cloneItems(items),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(TTLFor(id)),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// TTLFor returns the expiry window for an owner key.
func TTLFor(id string) time.Duration {
	if kind, _, err := ParseOwnerKey(id); err == nil && kind == OwnerGuest {
		return DefaultGuestCartTTL
	}
	return DefaultCartTTL
}

// TotalItems is the sum of all quantities.
func (c *Cart) TotalItems() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.Qty
	}
	return n
}

// Add increases quantity for productID. qty must be >= 1.
func (c *Cart) Add(productID string, qty int, now time.Time) error {
	if c == nil {
		return ErrInvalidCart
	}
	pid := strings.TrimSpace(productID)
	if pid == "" || qty <= 0 {
		return ErrInvalidCart
	}

	if idx := findItemIndex(c.Items, pid); idx >= 0 {
		c.Items[idx].Qty += qty
	} else {
		c.Items = append(c.Items, CartItem{ProductID: pid, Qty: qty})
	}

	c.touch(now)
	return c.validate()
}

// SetQty sets quantity for productID. qty <= 0 removes the item.
func (c *Cart) SetQty(productID string, qty int, now time.Time) error {
	if c == nil {
		return ErrInvalidCart
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return ErrInvalidCart
	}

	idx := findItemIndex(c.Items, pid)
	switch {
	case qty <= 0:
		if idx >= 0 {
			c.Items = removeIndex(c.Items, idx)
		}
	case idx >= 0:
		c.Items[idx].Qty = qty
	default:
		c.Items = append(c.Items, CartItem{ProductID: pid, Qty: qty})
	}

	c.touch(now)
	return c.validate()
}

// Remove removes productID from the cart.
func (c *Cart) Remove(productID string, now time.Time) error {
	return c.SetQty(productID, 0, now)
}

// Clear empties the cart and returns a snapshot of the removed items.
func (c *Cart) Clear(now time.Time) ([]CartItem, error) {
	if c == nil {
		return nil, ErrInvalidCart
	}
	snap := cloneItems(c.Items)
	c.Items = []CartItem{}
	c.touch(now)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Merge folds guest line items into c by product identity.
//
// Quantities of the same product are summed. When limits is non-nil it is the
// authoritative available stock per product: products missing from limits are
// rejected with ErrUnknownProduct, products with no stock left are rejected
// with ErrOutOfStock (nothing is applied in either case), and merged
// quantities are clamped to the limit.
func (c *Cart) Merge(guest []CartItem, limits map[string]int, now time.Time) error {
	if c == nil {
		return ErrInvalidCart
	}

	incoming := normalizeAndMerge(guest)
	if limits != nil {
		var unknown, soldOut []string
		for _, it := range incoming {
			limit, ok := limits[it.ProductID]
			switch {
			case !ok:
				unknown = append(unknown, it.ProductID)
			case limit <= 0:
				soldOut = append(soldOut, it.ProductID)
			}
		}
		if len(unknown) > 0 {
			return fmt.Errorf("%w: %s", ErrUnknownProduct, strings.Join(unknown, ","))
		}
		if len(soldOut) > 0 {
			return fmt.Errorf("%w: %s", ErrOutOfStock, strings.Join(soldOut, ","))
		}
	}

	for _, it := range incoming {
		qty := it.Qty
		idx := findItemIndex(c.Items, it.ProductID)
		if idx >= 0 {
			qty += c.Items[idx].Qty
		}
		if limits != nil {
			if limit := limits[it.ProductID]; qty > limit {
				qty = limit
			}
		}

		if idx >= 0 {
			c.Items[idx].Qty = qty
		} else {
			c.Items = append(c.Items, CartItem{ProductID: it.ProductID, Qty: qty})
		}
	}

	c.touch(now)
	return c.validate()
}

// HasMerged reports whether guest session sessionID was already merged.
func (c *Cart) HasMerged(sessionID string) bool {
	if c == nil {
		return false
	}
	sid := strings.TrimSpace(sessionID)
	for _, s := range c.MergedSessions {
		if s == sid {
			return true
		}
	}
	return false
}

// MarkMerged records sessionID, keeping the newest MaxMergedSessions entries.
func (c *Cart) MarkMerged(sessionID string) {
	sid := strings.TrimSpace(sessionID)
	if c == nil || sid == "" || c.HasMerged(sid) {
		return
	}
	c.MergedSessions = append(c.MergedSessions, sid)
	if n := len(c.MergedSessions); n > MaxMergedSessions {
		c.MergedSessions = append([]string(nil), c.MergedSessions[n-MaxMergedSessions:]...)
	}
}

// Expired reports whether the cart is past its expiry at now.
func (c *Cart) Expired(now time.Time) bool {
	return c != nil && !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func (c *Cart) touch(now time.Time) {
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(TTLFor(c.ID))
}

func (c *Cart) validate() error {
	if c == nil {
		return ErrInvalidCart
	}
	if strings.TrimSpace(c.ID) == "" {
		return ErrInvalidCart
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() || c.ExpiresAt.IsZero() {
		return ErrInvalidCart
	}
	if c.UpdatedAt.Before(c.CreatedAt) || c.ExpiresAt.Before(c.UpdatedAt) {
		return ErrInvalidCart
	}

	c.Items = normalizeAndMerge(c.Items)
	return nil
}

// ----------------------------
// Helpers
// ----------------------------

func findItemIndex(items []CartItem, pid string) int {
	for i := range items {
		if items[i].ProductID == pid {
			return i
		}
	}
	return -1
}

func removeIndex(items []CartItem, idx int) []CartItem {
	if idx < 0 || idx >= len(items) {
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}

// normalizeAndMerge trims ids, drops invalid lines, sums duplicates and
// sorts by ProductID.
func normalizeAndMerge(src []CartItem) []CartItem {
	m := map[string]int{}
	for _, it := range src {
		pid := strings.TrimSpace(it.ProductID)
		if pid == "" || it.Qty <= 0 {
			continue
		}
		m[pid] += it.Qty
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]CartItem, 0, len(keys))
	for _, k := range keys {
		out = append(out, CartItem{ProductID: k, Qty: m[k]})
	}
	return out
}

func cloneItems(src []CartItem) []CartItem {
	if len(src) == 0 {
		return []CartItem{}
	}
	cp := make([]CartItem, len(src))
	copy(cp, src)
	return normalizeAndMerge(cp)
}

// NormalizeItems exposes the normalization rule for adapters that build
// carts from storage or request payloads.
func NormalizeItems(src []CartItem) []CartItem {
	return normalizeAndMerge(src)
}
