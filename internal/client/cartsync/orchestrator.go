// internal/client/cartsync/orchestrator.go
package cartsync

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront/internal/client/cartstate"
)

// Cart is the slice of the cart state container the orchestrator drives.
type Cart interface {
	Begin() cartstate.Generation
	Snapshot() cartstate.State
	Subscribe(fn func(cartstate.State)) (cancel func())

	FetchCartAt(ctx context.Context, g cartstate.Generation) error
	MergeGuestCartAt(ctx context.Context, g cartstate.Generation, p cartstate.MergePayload) error
	ClearAfterMerge()

	MarkSyncing(g cartstate.Generation) error
	MarkSynced(g cartstate.Generation) error
	MarkFailed(g cartstate.Generation, err error) error
}

// Session is the guest identity / logout flag holder.
type Session interface {
	GuestSessionID() (string, bool)
	ClearGuestSession()
	ResetGuestIdentity() (old, fresh string)
	MarkLoggedOut()
	LoggedOutMarker() string
	ClearLoggedOut(marker string) bool
}

// AuthEvent is one observation of the auth subsystem.
type AuthEvent struct {
	IsAuthenticated bool
	AuthJustChanged bool
}

// Action is what a sync decided to do.
type Action string

const (
	ActionNone  Action = "none"
	ActionFetch Action = "fetch"
	ActionMerge Action = "merge"
)

// Result reports one sync. Err is set whenever Success is false.
type Result struct {
	Success bool
	Action  Action
	Err     error
}

// Orchestrator decides, per auth transition, whether to merge, fetch or do
// nothing, and sequences the calls on the cart container.
type Orchestrator struct {
	cart    Cart
	session Session
	log     *zap.Logger

	merges singleflight.Group
}

func NewOrchestrator(cart Cart, sess Session, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{cart: cart, session: sess, log: log.Named("cart_sync")}
}

// plan is the transition table. guestSession is "" when there is none;
// guest items without a session have nothing to merge against.
func plan(ev AuthEvent, guestItems bool, guestSession string, justLoggedOut bool) Action {
	switch {
	case !ev.IsAuthenticated:
		return ActionNone
	case !ev.AuthJustChanged:
		return ActionFetch
	case justLoggedOut:
		return ActionFetch
	case guestItems && guestSession != "":
		return ActionMerge
	default:
		return ActionFetch
	}
}

// Sync runs one sync for ev.
func (o *Orchestrator) Sync(ctx context.Context, ev AuthEvent) Result {
	if !ev.IsAuthenticated {
		return Result{Success: true, Action: ActionNone}
	}

	g := o.cart.Begin()
	if err := o.cart.MarkSyncing(g); err != nil {
		return Result{Action: ActionNone, Err: err}
	}

	// The flag is read here and cleared only when this generation commits, so
	// a superseded sync leaves it for the sync that replaced it.
	marker := o.session.LoggedOutMarker()
	justLoggedOut := marker != ""
	sid, _ := o.session.GuestSessionID()
	snap := o.cart.Snapshot()

	action := plan(ev, len(snap.Items) > 0, sid, justLoggedOut)
	log := o.log.With(
		zap.Uint64("generation", uint64(g)),
		zap.String("action", string(action)),
		zap.Bool("justLoggedOut", justLoggedOut),
	)
	log.Debug("sync start", zap.Int("guestItems", len(snap.Items)), zap.Bool("hasGuestSession", sid != ""))

	var err error
	switch action {
	case ActionMerge:
		err = o.merge(ctx, g, cartstate.MergePayload{Items: snap.Items, SessionID: sid})
		if err == nil {
			o.session.ClearGuestSession()
		}
	default:
		err = o.cart.FetchCartAt(ctx, g)
	}

	res := o.finish(ctx, g, action, err, log)
	if justLoggedOut && !errors.Is(res.Err, cartstate.ErrSuperseded) {
		o.session.ClearLoggedOut(marker)
	}
	return res
}

// TriggerSync is the manual retry: it only ever fetches, so a merge that may
// already have landed is never sent again.
func (o *Orchestrator) TriggerSync(ctx context.Context) Result {
	g := o.cart.Begin()
	if err := o.cart.MarkSyncing(g); err != nil {
		return Result{Action: ActionNone, Err: err}
	}
	log := o.log.With(zap.Uint64("generation", uint64(g)), zap.String("action", string(ActionFetch)))
	return o.finish(ctx, g, ActionFetch, o.cart.FetchCartAt(ctx, g), log)
}

// merge shares one in-flight merge per guest session. A concurrent caller
// whose generation superseded the leader's fetches the merged cart instead.
func (o *Orchestrator) merge(ctx context.Context, g cartstate.Generation, p cartstate.MergePayload) error {
	key := strings.TrimSpace(p.SessionID)
	_, err, shared := o.merges.Do(key, func() (any, error) {
		return nil, o.cart.MergeGuestCartAt(ctx, g, p)
	})
	if shared && errors.Is(err, cartstate.ErrSuperseded) {
		return o.cart.FetchCartAt(ctx, g)
	}
	return err
}

func (o *Orchestrator) finish(ctx context.Context, g cartstate.Generation, action Action, err error, log *zap.Logger) Result {
	if errors.Is(err, cartstate.ErrSuperseded) {
		log.Debug("sync superseded")
		return Result{Action: action, Err: err}
	}
	if err != nil {
		log.Warn("sync failed; falling back to fetch", zap.Error(err))
		if ferr := o.cart.FetchCartAt(ctx, g); ferr != nil && !errors.Is(ferr, cartstate.ErrSuperseded) {
			log.Warn("fallback fetch failed", zap.Error(ferr))
		}
		if merr := o.cart.MarkFailed(g, err); merr != nil {
			return Result{Action: action, Err: merr}
		}
		return Result{Action: action, Err: err}
	}

	if merr := o.cart.MarkSynced(g); merr != nil {
		return Result{Action: action, Err: merr}
	}
	log.Debug("sync done")
	return Result{Success: true, Action: action}
}
