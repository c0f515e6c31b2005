// internal/adapters/in/http/mall/router.go
package mall

import (
	"net/http"

	"go.uber.org/zap"
)

// Deps is the buyer-facing (mall) handler set.
type Deps struct {
	// /mall/cart, /mall/cart/items, /mall/cart/merge
	Cart http.Handler
}

// handleSafe registers pattern with h.
// If h is nil, it logs and registers NotFoundHandler instead so startup never panics.
func handleSafe(mux *http.ServeMux, pattern string, h http.Handler, name string, log *zap.Logger) {
	if h == nil {
		log.Warn("nil handler; registering NotFoundHandler", zap.String("name", name), zap.String("pattern", pattern))
		h = http.NotFoundHandler()
	}
	mux.Handle(pattern, h)
}

// Register registers buyer-facing routes onto mux (mall only).
func Register(mux *http.ServeMux, deps Deps, log *zap.Logger) {
	if mux == nil {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("mall.router")

	// carts
	handleSafe(mux, "/mall/cart", deps.Cart, "Cart", log)
	handleSafe(mux, "/mall/cart/", deps.Cart, "Cart", log)
}
