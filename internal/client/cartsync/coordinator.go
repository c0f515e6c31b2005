// internal/client/cartsync/coordinator.go
package cartsync

import (
	"context"

	"go.uber.org/zap"
)

// AuthState is what the auth subsystem publishes.
type AuthState struct {
	IsAuthenticated bool
}

// Coordinator turns a stream of auth states into syncs and logout resets.
type Coordinator struct {
	orch   *Orchestrator
	logout *LogoutHandler
	log    *zap.Logger

	// OnResult, if set, receives the result of every sync.
	OnResult func(AuthEvent, Result)
}

func NewCoordinator(orch *Orchestrator, logout *LogoutHandler, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{orch: orch, logout: logout, log: log.Named("cart_coordinator")}
}

// Run consumes states until ctx is done or states is closed. The first
// state is an observation, not a change. A true→false edge runs the logout
// reset before that state's sync.
func (c *Coordinator) Run(ctx context.Context, states <-chan AuthState) error {
	var (
		prev AuthState
		seen bool
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-states:
			if !ok {
				return nil
			}

			changed := seen && st.IsAuthenticated != prev.IsAuthenticated
			if changed && prev.IsAuthenticated && !st.IsAuthenticated {
				c.logout.HandleLogout()
			}
			prev, seen = st, true

			ev := AuthEvent{IsAuthenticated: st.IsAuthenticated, AuthJustChanged: changed}
			res := c.orch.Sync(ctx, ev)
			if !res.Success {
				c.log.Warn("cart sync failed",
					zap.Bool("authenticated", ev.IsAuthenticated),
					zap.String("action", string(res.Action)),
					zap.Error(res.Err),
				)
			}
			if c.OnResult != nil {
				c.OnResult(ev, res)
			}
		}
	}
}
