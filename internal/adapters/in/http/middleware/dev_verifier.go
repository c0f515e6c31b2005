// internal/adapters/in/http/middleware/dev_verifier.go
package middleware

import (
	"context"
	"errors"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
)

// DevTokenPrefix marks local development tokens: "dev:<uid>".
const DevTokenPrefix = "dev:"

// DevTokenVerifier accepts "dev:<uid>" tokens without any signature check.
// It exists for local runs against the memory/sqlite stores.
type DevTokenVerifier struct{}

func (DevTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*fbauth.Token, error) {
	uid, ok := strings.CutPrefix(strings.TrimSpace(idToken), DevTokenPrefix)
	uid = strings.TrimSpace(uid)
	if !ok || uid == "" {
		return nil, errors.New("dev token: expected dev:<uid>")
	}
	return &fbauth.Token{UID: uid, Subject: uid, Claims: map[string]any{}}, nil
}
