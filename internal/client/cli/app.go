// internal/client/cli/app.go
package cli

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/client/cartstate"
	"storefront/internal/client/cartsync"
	"storefront/internal/client/session"
	"storefront/internal/infra/logging"
)

// KeyIDToken is the storage key of the signed-in user's ID token.
const KeyIDToken = "idToken"

// app is one CLI invocation's client stack over the tab state file.
type app struct {
	store  *session.FileStorage
	sess   *session.Context
	cart   *cartstate.Container
	orch   *cartsync.Orchestrator
	logout *cartsync.LogoutHandler
	log    *zap.Logger

	out    io.Writer
	format string
}

func openApp(opts *RootOptions, out io.Writer) (*app, error) {
	log := zap.NewNop()
	if opts.Verbose {
		// console format writes to stderr
		l, err := logging.New("debug", "console")
		if err != nil {
			return nil, err
		}
		log = l
	}

	store, err := session.OpenFileStorage(opts.StatePath, log)
	if err != nil {
		return nil, err
	}
	if opts.NewService == nil {
		return nil, fmt.Errorf("no cart service factory")
	}

	a := &app{
		store:  store,
		sess:   session.NewContext(store),
		log:    log,
		out:    out,
		format: opts.Format,
	}
	a.cart = cartstate.New(opts.NewService(strings.TrimRight(opts.ServerURL, "/")), a.actor, log)
	a.orch = cartsync.NewOrchestrator(a.cart, a.sess, log)
	a.logout = cartsync.NewLogoutHandler(a.cart, a.sess, log)
	return a, nil
}

// actor signs requests with the stored token; guests always carry a session id.
func (a *app) actor() cartstate.Actor {
	if tok := a.token(); tok != "" {
		sid, _ := a.sess.GuestSessionID()
		return cartstate.Actor{IDToken: tok, GuestSessionID: sid}
	}
	return cartstate.Actor{GuestSessionID: a.sess.GetOrCreateGuestSessionID()}
}

func (a *app) token() string {
	tok, _ := a.store.Get(KeyIDToken)
	return strings.TrimSpace(tok)
}

func (a *app) close() {
	if err := a.store.Flush(); err != nil {
		a.log.Warn("state flush failed", zap.Error(err))
	}
	_ = a.log.Sync()
}
