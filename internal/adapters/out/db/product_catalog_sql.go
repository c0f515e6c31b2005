// internal/adapters/out/db/product_catalog_sql.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	dbcommon "storefront/internal/adapters/out/db/common"
)

// ProductCatalogSQL reads stock from the products table.
type ProductCatalogSQL struct {
	DB      *sql.DB
	Dialect dbcommon.Dialect
}

func NewProductCatalogSQL(db *sql.DB, dialect dbcommon.Dialect) *ProductCatalogSQL {
	return &ProductCatalogSQL{DB: db, Dialect: dialect}
}

func (c *ProductCatalogSQL) Availability(ctx context.Context, productID string) (int, bool, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return 0, false, nil
	}

	var stock int
	err := dbcommon.GetRunner(ctx, c.DB).
		QueryRowContext(ctx, c.Dialect.Rebind(`SELECT stock FROM products WHERE id = ?`), pid).
		Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if stock < 0 {
		stock = 0
	}
	return stock, true, nil
}

// PutStock inserts or updates a product's stock (seeding / admin tooling).
func (c *ProductCatalogSQL) PutStock(ctx context.Context, productID string, stock int) error {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return errors.New("product_catalog_sql: productID is empty")
	}
	const q = `
INSERT INTO products (id, stock) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET stock = excluded.stock`
	_, err := dbcommon.GetRunner(ctx, c.DB).ExecContext(ctx, c.Dialect.Rebind(q), pid, stock)
	return err
}
