// internal/adapters/out/firestore/cart_repository_fs.go
package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cartdom "storefront/internal/domain/cart"
)

// CartRepositoryFS implements cart.Repository using Firestore.
//
// Collection design:
//   - collection: carts
//   - docId: owner key (docId is the source of truth)
//   - fields: items(array), mergedSessions(array), createdAt, updatedAt, expiresAt
//
// TTL:
//   - Configure Firestore TTL on "expiresAt". DeleteExpired covers projects
//     where the TTL policy is not enabled.
type CartRepositoryFS struct {
	Client     *firestore.Client
	Collection string
}

func NewCartRepositoryFS(client *firestore.Client) *CartRepositoryFS {
	return &CartRepositoryFS{Client: client, Collection: "carts"}
}

func (r *CartRepositoryFS) col() *firestore.CollectionRef {
	name := strings.TrimSpace(r.Collection)
	if name == "" {
		name = "carts"
	}
	return r.Client.Collection(name)
}

// GetByID returns (nil, nil) if not found.
func (r *CartRepositoryFS) GetByID(ctx context.Context, id string) (*cartdom.Cart, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("cart_repository_fs: firestore client is nil")
	}
	key := strings.TrimSpace(id)
	if key == "" {
		return nil, errors.New("cart_repository_fs: id is empty")
	}

	snap, err := r.col().Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	// Parse snap.Data() by hand instead of DataTo: older docs stored items as
	// map[productId]qty and DataTo would fail on them.
	c := cartDocFromData(snap.Data()).toDomain()
	c.ID = key
	return c, nil
}

// Upsert overwrites the full doc (simple & predictable).
func (r *CartRepositoryFS) Upsert(ctx context.Context, c *cartdom.Cart) error {
	if r == nil || r.Client == nil {
		return errors.New("cart_repository_fs: firestore client is nil")
	}
	if c == nil {
		return errors.New("cart_repository_fs: cart is nil")
	}
	key := strings.TrimSpace(c.ID)
	if key == "" {
		return errors.New("cart_repository_fs: Upsert requires cart.ID as docId")
	}

	_, err := r.col().Doc(key).Set(ctx, cartDocFromDomain(c))
	return err
}

func (r *CartRepositoryFS) DeleteByID(ctx context.Context, id string) error {
	if r == nil || r.Client == nil {
		return errors.New("cart_repository_fs: firestore client is nil")
	}
	key := strings.TrimSpace(id)
	if key == "" {
		return errors.New("cart_repository_fs: id is empty")
	}

	_, err := r.col().Doc(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// DeleteExpired deletes carts with expiresAt <= before, in batches of docs
// read from a single query.
func (r *CartRepositoryFS) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if r == nil || r.Client == nil {
		return 0, errors.New("cart_repository_fs: firestore client is nil")
	}

	it := r.col().Where("expiresAt", "<=", before).Documents(ctx)
	defer it.Stop()

	bw := r.Client.BulkWriter(ctx)
	n := 0
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return n, err
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return n, err
		}
		n++
	}
	bw.End()
	return n, nil
}

// -----------------------------------------
// Firestore DTO
// -----------------------------------------

type cartDoc struct {
	Items          []cartItemDoc `firestore:"items"`
	MergedSessions []string      `firestore:"mergedSessions"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}

type cartItemDoc struct {
	ProductID string `firestore:"productId"`
	Qty       int    `firestore:"qty"`
}

// cartDocFromData parses Firestore document data with backward compatibility.
//
// Supported item shapes:
//  1. items: [{productId, qty}]
//  2. items: map[productId] = qty (legacy)
//  3. items: map[productId] = {productId, qty}
func cartDocFromData(raw map[string]any) cartDoc {
	out := cartDoc{Items: []cartItemDoc{}}
	if raw == nil {
		return out
	}

	if tt, ok := asTime(raw["createdAt"]); ok {
		out.CreatedAt = tt
	}
	if tt, ok := asTime(raw["updatedAt"]); ok {
		out.UpdatedAt = tt
	}
	if tt, ok := asTime(raw["expiresAt"]); ok {
		out.ExpiresAt = tt
	}

	if ms, ok := raw["mergedSessions"].([]any); ok {
		for _, v := range ms {
			if s := strings.TrimSpace(asString(v)); s != "" {
				out.MergedSessions = append(out.MergedSessions, s)
			}
		}
	}

	switch items := raw["items"].(type) {
	case []any:
		for _, v := range items {
			mv, ok := v.(map[string]any)
			if !ok {
				continue
			}
			out.Items = appendItem(out.Items, asString(mv["productId"]), asInt(mv["qty"]))
		}
	case map[string]any:
		for k, v := range items {
			if mv, ok := v.(map[string]any); ok {
				pid := asString(mv["productId"])
				if strings.TrimSpace(pid) == "" {
					pid = k
				}
				out.Items = appendItem(out.Items, pid, asInt(mv["qty"]))
				continue
			}
			out.Items = appendItem(out.Items, k, asInt(v))
		}
	}

	return out
}

func appendItem(items []cartItemDoc, pid string, qty int) []cartItemDoc {
	pid = strings.TrimSpace(pid)
	if pid == "" || qty <= 0 {
		return items
	}
	return append(items, cartItemDoc{ProductID: pid, Qty: qty})
}

func cartDocFromDomain(c *cartdom.Cart) cartDoc {
	items := make([]cartItemDoc, 0, len(c.Items))
	for _, it := range cartdom.NormalizeItems(c.Items) {
		items = append(items, cartItemDoc{ProductID: it.ProductID, Qty: it.Qty})
	}
	merged := c.MergedSessions
	if merged == nil {
		merged = []string{}
	}
	return cartDoc{
		Items:          items,
		MergedSessions: merged,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		ExpiresAt:      c.ExpiresAt,
	}
}

func (d cartDoc) toDomain() *cartdom.Cart {
	items := make([]cartdom.CartItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, cartdom.CartItem{ProductID: it.ProductID, Qty: it.Qty})
	}
	return &cartdom.Cart{
		// ID is filled by the caller (docId)
		Items:          cartdom.NormalizeItems(items),
		MergedSessions: d.MergedSessions,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		ExpiresAt:      d.ExpiresAt,
	}
}
