package cartsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront/internal/client/cartstate"
)

type recorded struct {
	ev  AuthEvent
	res Result
}

func newRecordingCoordinator(h *harness) (*Coordinator, func() []recorded) {
	var (
		mu  sync.Mutex
		out []recorded
	)
	c := NewCoordinator(h.orch, h.logout, nil)
	c.OnResult = func(ev AuthEvent, res Result) {
		mu.Lock()
		out = append(out, recorded{ev, res})
		mu.Unlock()
	}
	return c, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), out...)
	}
}

func TestCoordinator_LoginLogoutLogin(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.addGuestItems(t, cartstate.Item{ProductID: "p1", Quantity: 1})
	coord, results := newRecordingCoordinator(h)

	states := make(chan AuthState)
	done := make(chan error, 1)
	go func() { done <- coord.Run(context.Background(), states) }()

	// Each state is fully handled before the actor changes again.
	send := func(st AuthState, n int) {
		states <- st
		require.Eventually(t, func() bool { return len(results()) == n }, time.Second, time.Millisecond)
	}

	send(AuthState{IsAuthenticated: false}, 1)

	h.setToken("tok")
	send(AuthState{IsAuthenticated: true}, 2)

	h.setToken("")
	send(AuthState{IsAuthenticated: false}, 3)

	// New guest adds an item before logging back in.
	h.addGuestItems(t, cartstate.Item{ProductID: "p9", Quantity: 1})

	h.setToken("tok")
	send(AuthState{IsAuthenticated: true}, 4)
	close(states)
	require.NoError(t, <-done)

	got := results()
	require.Len(t, got, 4)

	assert.Equal(t, AuthEvent{IsAuthenticated: false, AuthJustChanged: false}, got[0].ev)
	assert.Equal(t, ActionNone, got[0].res.Action)

	assert.Equal(t, AuthEvent{IsAuthenticated: true, AuthJustChanged: true}, got[1].ev)
	assert.Equal(t, ActionMerge, got[1].res.Action)
	assert.True(t, got[1].res.Success)

	assert.Equal(t, ActionNone, got[2].res.Action)

	assert.Equal(t, ActionFetch, got[3].res.Action, "login right after logout never merges")
	assert.True(t, got[3].res.Success)
	assert.Equal(t, int32(1), h.svc.merges.Load())
	assert.Equal(t, []cartstate.Item{{ProductID: "p1", Quantity: 1}}, h.cart.Snapshot().Items)
}

func TestCoordinator_FirstAuthenticatedStateIsRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.addGuestItems(t, cartstate.Item{ProductID: "p1", Quantity: 1})
	h.setToken("tok")
	coord, results := newRecordingCoordinator(h)

	states := make(chan AuthState, 1)
	states <- AuthState{IsAuthenticated: true}
	close(states)
	require.NoError(t, coord.Run(context.Background(), states))

	got := results()
	require.Len(t, got, 1)
	assert.Equal(t, ActionFetch, got[0].res.Action)
	assert.Zero(t, h.svc.merges.Load())
}

func TestCoordinator_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	coord := NewCoordinator(h.orch, h.logout, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx, make(chan AuthState)) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestLogoutHandler_Order(t *testing.T) {
	h := newHarness(t)
	h.addGuestItems(t, cartstate.Item{ProductID: "p1", Quantity: 1})

	// A sync running during logout must not see the old guest id with the
	// flag unset; after HandleLogout returns both are in place.
	old, fresh := h.logout.HandleLogout()
	assert.NotEmpty(t, old)
	assert.NotEqual(t, old, fresh)

	cur, ok := h.sess.GuestSessionID()
	require.True(t, ok)
	assert.Equal(t, fresh, cur)
	assert.Empty(t, h.cart.Snapshot().Items)
	assert.True(t, h.sess.TakeLoggedOut())
}
