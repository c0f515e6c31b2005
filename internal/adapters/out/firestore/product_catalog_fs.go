// internal/adapters/out/firestore/product_catalog_fs.go
package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProductCatalogFS reads stock from products/{productId}.
//
// A product doc without a stock field is treated as unlimited-but-known and
// reports UnlimitedStock.
type ProductCatalogFS struct {
	Client     *firestore.Client
	Collection string
}

// UnlimitedStock is reported for products that do not track stock.
const UnlimitedStock = 1 << 30

func NewProductCatalogFS(client *firestore.Client) *ProductCatalogFS {
	return &ProductCatalogFS{Client: client, Collection: "products"}
}

func (c *ProductCatalogFS) Availability(ctx context.Context, productID string) (int, bool, error) {
	if c == nil || c.Client == nil {
		return 0, false, errors.New("product_catalog_fs: firestore client is nil")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return 0, false, nil
	}

	col := strings.TrimSpace(c.Collection)
	if col == "" {
		col = "products"
	}

	snap, err := c.Client.Collection(col).Doc(pid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	stock, ok := stockFromData(snap.Data())
	return stock, ok, nil
}

// stockFromData reads the stock field. A present doc is always known.
func stockFromData(raw map[string]any) (int, bool) {
	if raw == nil {
		return UnlimitedStock, true
	}
	v, ok := raw["stock"]
	if !ok || v == nil {
		return UnlimitedStock, true
	}
	n := asInt(v)
	if n < 0 {
		n = 0
	}
	return n, true
}
