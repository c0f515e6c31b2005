// internal/platform/di/mall/register.go
package mall

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	mallhttp "storefront/internal/adapters/in/http/mall"
	mallhandler "storefront/internal/adapters/in/http/mall/handler"
	"storefront/internal/adapters/in/http/middleware"
)

// notImplemented returns a non-nil handler (so deps are never nil) for endpoints
// that are not wired yet.
func notImplemented(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotImplemented)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "not_implemented",
			"name":  name,
		})
	})
}

// withCartIdentity wraps h with optional bearer auth and guest-session parsing.
// Bearer requests without a verifier get 503 from the middleware itself.
func withCartIdentity(verifier middleware.IDTokenVerifier, h http.Handler, log *zap.Logger) http.Handler {
	mw := &middleware.UserAuthMiddleware{
		Verifier: verifier,
		Optional: true,
		Log:      log,
	}
	return mw.Handler(middleware.GuestSession(h))
}

// Register registers mall routes onto mux.
// Pure DI: construct handlers and pass into mall router.Register.
func Register(mux *http.ServeMux, cont *Container) {
	if mux == nil || cont == nil {
		return
	}
	log := cont.Log
	if log == nil {
		log = zap.NewNop()
	}

	if cont.Verifier == nil {
		log.Warn("no id token verifier; bearer requests will get 503")
	}

	cartH := notImplemented("Cart")
	if cont.CartUC != nil {
		cartH = mallhandler.NewCartHandler(cont.CartUC, log)
	}
	cartH = withCartIdentity(cont.Verifier, cartH, log)

	mallhttp.Register(mux, mallhttp.Deps{
		Cart: cartH,
	}, log)
}
