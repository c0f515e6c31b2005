package cartsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/client/cartstate"
)

func TestMessage(t *testing.T) {
	cases := []struct {
		status cartstate.SyncStatus
		errTxt string
		want   string
		ok     bool
	}{
		{cartstate.StatusIdle, "", "", false},
		{cartstate.StatusIdle, "stale", "", false},
		{cartstate.StatusSyncing, "", MsgSynchronizing, true},
		{cartstate.StatusSynced, "", MsgSynchronized, true},
		{cartstate.StatusError, "merge conflict", "merge conflict", true},
		{cartstate.StatusError, "  ", MsgSyncFailed, true},
	}
	for _, tc := range cases {
		msg, ok := Message(tc.status, tc.errTxt)
		assert.Equal(t, tc.want, msg, "%s/%q", tc.status, tc.errTxt)
		assert.Equal(t, tc.ok, ok)
	}
}

func TestFeedback_FollowsSync(t *testing.T) {
	h := newHarness(t)
	h.setToken("tok")

	var (
		mu   sync.Mutex
		msgs []string
	)
	fb := NewFeedback(h.cart, func(msg string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			msgs = append(msgs, msg)
		} else {
			msgs = append(msgs, "-")
		}
	})
	defer fb.Close()

	_, ok := fb.Current()
	assert.False(t, ok, "idle has no message")

	require.True(t, h.orch.Sync(context.Background(), AuthEvent{IsAuthenticated: true}).Success)
	msg, ok := fb.Current()
	assert.True(t, ok)
	assert.Equal(t, MsgSynchronized, msg)

	h.svc.setGetErr(errNetwork)
	require.False(t, h.orch.TriggerSync(context.Background()).Success)
	msg, _ = fb.Current()
	assert.Equal(t, errNetwork.Error(), msg)

	h.logout.HandleLogout()
	_, ok = fb.Current()
	assert.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		MsgSynchronizing, MsgSynchronized,
		"-", MsgSynchronizing, errNetwork.Error(),
		"-",
	}, msgs)
}

func TestFeedback_CloseFromOnChange(t *testing.T) {
	h := newHarness(t)

	var (
		mu   sync.Mutex
		msgs []string
		fb   *Feedback
	)
	fb = NewFeedback(h.cart, func(msg string, _ bool) {
		mu.Lock()
		msgs = append(msgs, msg)
		f := fb
		mu.Unlock()
		if f != nil {
			f.Close()
		}
	})

	done := make(chan Result, 1)
	go func() { done <- h.orch.TriggerSync(context.Background()) }()

	select {
	case res := <-done:
		assert.True(t, res.Success, "%v", res.Err)
	case <-time.After(time.Second):
		t.Fatal("Close inside onChange deadlocked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{MsgSynchronizing}, msgs, "no messages after Close")
}
