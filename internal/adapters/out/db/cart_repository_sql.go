// internal/adapters/out/db/cart_repository_sql.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbcommon "storefront/internal/adapters/out/db/common"
	cartdom "storefront/internal/domain/cart"
)

// CartRepositorySQL implements cart.Repository over database/sql.
// Postgres (lib/pq) and SQLite (modernc) share the schema in cartdom.*DDL.
type CartRepositorySQL struct {
	DB      *sql.DB
	Dialect dbcommon.Dialect
}

func NewCartRepositorySQL(db *sql.DB, dialect dbcommon.Dialect) *CartRepositorySQL {
	return &CartRepositorySQL{DB: db, Dialect: dialect}
}

// Migrate creates the cart tables if they do not exist.
func (r *CartRepositorySQL) Migrate(ctx context.Context) error {
	for _, ddl := range []string{cartdom.CartsTableDDL, cartdom.CartItemsTableDDL, cartdom.ProductsTableDDL} {
		if _, err := r.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("cart_repository_sql: migrate: %w", err)
		}
	}
	return nil
}

// GetByID returns (nil, nil) if not found.
func (r *CartRepositorySQL) GetByID(ctx context.Context, id string) (*cartdom.Cart, error) {
	key := strings.TrimSpace(id)
	if key == "" {
		return nil, errors.New("cart_repository_sql: id is empty")
	}
	run := dbcommon.GetRunner(ctx, r.DB)

	const q = `
SELECT id, created_at, updated_at, expires_at, merged_sessions
FROM carts
WHERE id = ?`
	c, err := scanCart(run.QueryRowContext(ctx, r.Dialect.Rebind(q), key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	const qi = `
SELECT product_id, qty
FROM cart_items
WHERE cart_id = ?
ORDER BY product_id`
	rows, err := run.QueryContext(ctx, r.Dialect.Rebind(qi), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it cartdom.CartItem
		if err := rows.Scan(&it.ProductID, &it.Qty); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.Items = cartdom.NormalizeItems(c.Items)
	return c, nil
}

// Upsert rewrites the cart row and all of its items in one transaction.
func (r *CartRepositorySQL) Upsert(ctx context.Context, c *cartdom.Cart) error {
	if c == nil {
		return errors.New("cart_repository_sql: cart is nil")
	}
	key := strings.TrimSpace(c.ID)
	if key == "" {
		return errors.New("cart_repository_sql: Upsert requires cart.ID")
	}

	return dbcommon.WithTx(ctx, r.DB, func(ctx context.Context) error {
		run := dbcommon.GetRunner(ctx, r.DB)

		const qc = `
INSERT INTO carts (id, created_at, updated_at, expires_at, merged_sessions)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  updated_at = excluded.updated_at,
  expires_at = excluded.expires_at,
  merged_sessions = excluded.merged_sessions`
		if _, err := run.ExecContext(ctx, r.Dialect.Rebind(qc),
			key,
			toUnixNano(c.CreatedAt),
			toUnixNano(c.UpdatedAt),
			toUnixNano(c.ExpiresAt),
			strings.Join(c.MergedSessions, ","),
		); err != nil {
			return err
		}

		if _, err := run.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM cart_items WHERE cart_id = ?`), key); err != nil {
			return err
		}

		const qi = `INSERT INTO cart_items (cart_id, product_id, qty) VALUES (?, ?, ?)`
		for _, it := range cartdom.NormalizeItems(c.Items) {
			if _, err := run.ExecContext(ctx, r.Dialect.Rebind(qi), key, it.ProductID, it.Qty); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CartRepositorySQL) DeleteByID(ctx context.Context, id string) error {
	key := strings.TrimSpace(id)
	if key == "" {
		return errors.New("cart_repository_sql: id is empty")
	}

	return dbcommon.WithTx(ctx, r.DB, func(ctx context.Context) error {
		run := dbcommon.GetRunner(ctx, r.DB)
		if _, err := run.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM cart_items WHERE cart_id = ?`), key); err != nil {
			return err
		}
		_, err := run.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM carts WHERE id = ?`), key)
		return err
	})
}

func (r *CartRepositorySQL) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	cutoff := toUnixNano(before)
	var n int64

	err := dbcommon.WithTx(ctx, r.DB, func(ctx context.Context) error {
		run := dbcommon.GetRunner(ctx, r.DB)

		const qi = `
DELETE FROM cart_items
WHERE cart_id IN (SELECT id FROM carts WHERE expires_at <= ?)`
		if _, err := run.ExecContext(ctx, r.Dialect.Rebind(qi), cutoff); err != nil {
			return err
		}

		res, err := run.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM carts WHERE expires_at <= ?`), cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ========== Helpers ==========

func scanCart(s dbcommon.RowScanner) (*cartdom.Cart, error) {
	var (
		id                              string
		createdAt, updatedAt, expiresAt int64
		merged                          string
	)
	if err := s.Scan(&id, &createdAt, &updatedAt, &expiresAt, &merged); err != nil {
		return nil, err
	}

	c := &cartdom.Cart{
		ID:        id,
		Items:     []cartdom.CartItem{},
		CreatedAt: fromUnixNano(createdAt),
		UpdatedAt: fromUnixNano(updatedAt),
		ExpiresAt: fromUnixNano(expiresAt),
	}
	for _, s := range strings.Split(merged, ",") {
		if s = strings.TrimSpace(s); s != "" {
			c.MergedSessions = append(c.MergedSessions, s)
		}
	}
	return c, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
