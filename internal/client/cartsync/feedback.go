// internal/client/cartsync/feedback.go
package cartsync

import (
	"strings"
	"sync"

	"storefront/internal/client/cartstate"
)

const (
	MsgSynchronizing = "synchronizing"
	MsgSynchronized  = "synchronized"
	MsgSyncFailed    = "cart synchronization failed"
)

// Message maps a sync status to the user-facing message. ok is false for idle.
func Message(status cartstate.SyncStatus, errText string) (msg string, ok bool) {
	switch status {
	case cartstate.StatusSyncing:
		return MsgSynchronizing, true
	case cartstate.StatusSynced:
		return MsgSynchronized, true
	case cartstate.StatusError:
		if s := strings.TrimSpace(errText); s != "" {
			return s, true
		}
		return MsgSyncFailed, true
	default:
		return "", false
	}
}

// Feedback keeps the message for the latest container state.
type Feedback struct {
	mu     sync.RWMutex
	msg    string
	ok     bool
	cancel func()

	onChange func(msg string, ok bool)
}

// NewFeedback subscribes to cart. onChange, if non-nil, is called whenever
// the message changes.
func NewFeedback(cart Cart, onChange func(msg string, ok bool)) *Feedback {
	f := &Feedback{onChange: onChange}
	f.cancel = cart.Subscribe(f.update)
	return f
}

func (f *Feedback) update(st cartstate.State) {
	msg, ok := Message(st.SyncStatus, st.Error)

	f.mu.Lock()
	changed := msg != f.msg || ok != f.ok
	f.msg, f.ok = msg, ok
	f.mu.Unlock()

	if changed && f.onChange != nil {
		f.onChange(msg, ok)
	}
}

// Current returns the latest message; ok is false when there is none.
func (f *Feedback) Current() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.msg, f.ok
}

func (f *Feedback) Close() {
	if f.cancel != nil {
		f.cancel()
	}
}
