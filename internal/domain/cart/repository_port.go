// internal/domain/cart/repository_port.go
package cart

import (
	"context"
	"time"
)

// Repository is a persistence port for Cart.
//
// Storage (Firestore):
//   - collection: carts
//   - docId: owner key (user:<uid> / guest:<sessionId>)
//   - fields: items(array of {productId, qty}), createdAt, updatedAt, expiresAt
//
// Storage (SQL): tables carts / cart_items, see CartsTableDDL.
type Repository interface {
	// GetByID returns (nil, nil) when the cart does not exist.
	GetByID(ctx context.Context, id string) (*Cart, error)

	// Upsert saves the full cart (create or overwrite).
	Upsert(ctx context.Context, c *Cart) error

	// DeleteByID deletes the cart. Deleting a missing cart is not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired removes carts whose expiresAt is at or before the given
	// time and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// ProductCatalog answers "can this product be in a cart, and how many".
// ok=false means the product is unknown.
type ProductCatalog interface {
	Availability(ctx context.Context, productID string) (stock int, ok bool, err error)
}

// DDL reference (for schema alignment with migrations).
// Timestamps are unix nanoseconds so the same schema works on Postgres and SQLite.
const CartsTableDDL = `
CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  expires_at BIGINT NOT NULL,
  merged_sessions TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS carts_expires_at_idx ON carts (expires_at);
`

const CartItemsTableDDL = `
CREATE TABLE IF NOT EXISTS cart_items (
  cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL CHECK (qty > 0),
  PRIMARY KEY (cart_id, product_id)
);
`

const ProductsTableDDL = `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  stock INTEGER NOT NULL DEFAULT 0
);
`
