// internal/adapters/in/http/middleware/user_auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

// IDTokenVerifier is satisfied by *fbauth.Client.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// context keys use a private type to avoid collisions (SA1029)
type ctxKey struct{ name string }

var (
	ctxKeyUID          = ctxKey{name: "uid"}
	ctxKeyEmail        = ctxKey{name: "email"}
	ctxKeyGuestSession = ctxKey{name: "guestSessionId"}
)

// UserAuthMiddleware verifies a Firebase ID token (buyer side) and stores
// uid/email in the request context.
//   - no Authorization header: the request continues as a guest when Optional
//     is set, otherwise 401.
//   - a bearer token that fails verification is always 401.
type UserAuthMiddleware struct {
	Verifier IDTokenVerifier
	Optional bool
	Log      *zap.Logger
}

func (m *UserAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" {
			if m != nil && m.Optional {
				next.ServeHTTP(w, r)
				return
			}
			writeJSONError(w, http.StatusUnauthorized, "unauthorized: missing bearer token")
			return
		}

		if m == nil || m.Verifier == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "user auth middleware not initialized")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized: missing bearer token")
			return
		}
		idToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if idToken == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized: empty bearer token")
			return
		}

		token, err := m.Verifier.VerifyIDToken(r.Context(), idToken)
		if err != nil {
			m.logger().Debug("id token rejected", zap.Int("tokenLen", len(idToken)), zap.Error(err))
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		uid := strings.TrimSpace(token.UID)
		if uid == "" {
			writeJSONError(w, http.StatusUnauthorized, "invalid uid in token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUID, uid)
		if emailRaw, ok := token.Claims["email"]; ok {
			if e, ok2 := emailRaw.(string); ok2 && strings.TrimSpace(e) != "" {
				ctx = context.WithValue(ctx, ctxKeyEmail, strings.TrimSpace(e))
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *UserAuthMiddleware) logger() *zap.Logger {
	if m == nil || m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}

// CurrentUserUID returns the Firebase uid of an authenticated request.
func CurrentUserUID(r *http.Request) (string, bool) {
	u, ok := r.Context().Value(ctxKeyUID).(string)
	if !ok || strings.TrimSpace(u) == "" {
		return "", false
	}
	return strings.TrimSpace(u), true
}

// CurrentUserEmail returns the email claim, if present.
func CurrentUserEmail(r *http.Request) (string, bool) {
	e, ok := r.Context().Value(ctxKeyEmail).(string)
	if !ok || e == "" {
		return "", false
	}
	return e, true
}

// WithUserUID is used by tests and internal callers that authenticate by
// other means.
func WithUserUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKeyUID, strings.TrimSpace(uid))
}
