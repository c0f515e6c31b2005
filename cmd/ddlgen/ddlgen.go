// cmd/ddlgen/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	cartdom "storefront/internal/domain/cart"
)

func mustWrite(path string, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		panic(err)
	}
}

func main() {
	outDir := filepath.Join("internal", "infra", "database", "migrations")
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}

	// output files (alphabetical)
	files := []struct {
		name string
		ddl  string
	}{
		{"init_cart_items.sql", cartdom.CartItemsTableDDL},
		{"init_carts.sql", cartdom.CartsTableDDL},
		{"init_products.sql", cartdom.ProductsTableDDL},
	}

	for _, f := range files {
		path := filepath.Join(outDir, f.name)
		mustWrite(path, f.ddl)
		fmt.Println("Generated:", path)
	}
}
