// internal/adapters/in/http/middleware/guest_session.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	cartdom "storefront/internal/domain/cart"
)

// GuestSessionHeader carries the client's guest session id.
const GuestSessionHeader = "X-Guest-Session-Id"

// GuestSession reads the guest session header into the request context.
// A malformed id is rejected with 400; an absent one is fine.
func GuestSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		sid := strings.TrimSpace(r.Header.Get(GuestSessionHeader))
		if sid == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !cartdom.ValidGuestSessionID(sid) {
			writeJSONError(w, http.StatusBadRequest, "invalid guest session id")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyGuestSession, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentGuestSessionID returns the id stored by GuestSession.
func CurrentGuestSessionID(r *http.Request) (string, bool) {
	s, ok := r.Context().Value(ctxKeyGuestSession).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
