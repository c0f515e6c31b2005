// internal/domain/cart/owner.go
package cart

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidOwnerKey = errors.New("cart: invalid owner key")

// OwnerKind tells whose cart a document is.
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerGuest OwnerKind = "guest"
)

// UserKey is the cart docId for an authenticated user (Firebase uid).
func UserKey(uid string) string {
	return string(OwnerUser) + ":" + strings.TrimSpace(uid)
}

// GuestKey is the cart docId for a guest session.
func GuestKey(sessionID string) string {
	return string(OwnerGuest) + ":" + strings.TrimSpace(sessionID)
}

// ParseOwnerKey splits an owner key into its kind and subject.
func ParseOwnerKey(key string) (OwnerKind, string, error) {
	kind, subject, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok || strings.TrimSpace(subject) == "" {
		return "", "", ErrInvalidOwnerKey
	}
	switch OwnerKind(kind) {
	case OwnerUser:
		return OwnerUser, subject, nil
	case OwnerGuest:
		if !ValidGuestSessionID(subject) {
			return "", "", ErrInvalidOwnerKey
		}
		return OwnerGuest, subject, nil
	default:
		return "", "", ErrInvalidOwnerKey
	}
}

// Guest session ids look like guest_<unixMillis>_<random>.
const guestSessionPrefix = "guest_"

// NewGuestSessionID formats a guest session id from a timestamp and a random
// suffix. random must be non-empty lowercase alphanumerics.
func NewGuestSessionID(now time.Time, random string) string {
	return fmt.Sprintf("%s%d_%s", guestSessionPrefix, now.UnixMilli(), random)
}

// ValidGuestSessionID reports whether s has the guest session id shape.
func ValidGuestSessionID(s string) bool {
	rest, ok := strings.CutPrefix(s, guestSessionPrefix)
	if !ok {
		return false
	}
	ts, random, ok := strings.Cut(rest, "_")
	if !ok || ts == "" || random == "" || len(random) > 64 {
		return false
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return false
	}
	for _, r := range random {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
