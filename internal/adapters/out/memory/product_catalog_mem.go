// internal/adapters/out/memory/product_catalog_mem.go
package memory

import (
	"context"
	"strings"
	"sync"
)

// ProductCatalogMem is a fixed stock table.
type ProductCatalogMem struct {
	mu    sync.RWMutex
	stock map[string]int
}

func NewProductCatalogMem(stock map[string]int) *ProductCatalogMem {
	cp := make(map[string]int, len(stock))
	for k, v := range stock {
		cp[strings.TrimSpace(k)] = v
	}
	return &ProductCatalogMem{stock: cp}
}

func (c *ProductCatalogMem) Availability(_ context.Context, productID string) (int, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, ok := c.stock[strings.TrimSpace(productID)]
	return n, ok, nil
}

// SetStock adds or updates a product.
func (c *ProductCatalogMem) SetStock(productID string, stock int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[strings.TrimSpace(productID)] = stock
}
