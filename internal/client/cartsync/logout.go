// internal/client/cartsync/logout.go
package cartsync

import "go.uber.org/zap"

// LogoutHandler resets cart and guest identity on logout.
type LogoutHandler struct {
	cart    Cart
	session Session
	log     *zap.Logger
}

func NewLogoutHandler(cart Cart, sess Session, log *zap.Logger) *LogoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogoutHandler{cart: cart, session: sess, log: log.Named("cart_logout")}
}

// HandleLogout empties the cart, replaces the guest id and arms the logout
// flag, in that order. All three are done when it returns.
func (h *LogoutHandler) HandleLogout() (oldGuest, newGuest string) {
	h.cart.ClearAfterMerge()
	oldGuest, newGuest = h.session.ResetGuestIdentity()
	h.session.MarkLoggedOut()

	h.log.Info("cart reset after logout",
		zap.String("oldGuestSession", oldGuest),
		zap.String("newGuestSession", newGuest),
	)
	return oldGuest, newGuest
}
