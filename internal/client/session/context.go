// internal/client/session/context.go
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cartdom "storefront/internal/domain/cart"
)

// Storage keys.
const (
	KeyGuestSessionID = "guestSessionId"
	KeyJustLoggedOut  = "justLoggedOut"
)

const guestRandomLen = 9

// Context is the single owner of the guest identity and the logout flag.
// Every read-modify-write on those keys happens under one mutex, so callers
// never observe a half-applied reset or a flag that two syncs both consumed.
type Context struct {
	mu    sync.Mutex
	store Storage

	now    func() time.Time
	random func() string
}

// Option customizes a Context.
type Option func(*Context)

// WithClock overrides the timestamp source of new guest ids.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRandom overrides the random suffix source of new guest ids.
func WithRandom(random func() string) Option {
	return func(c *Context) {
		if random != nil {
			c.random = random
		}
	}
}

func NewContext(store Storage, opts ...Option) *Context {
	if store == nil {
		store = NewMemoryStorage()
	}
	c := &Context{
		store:  store,
		now:    time.Now,
		random: randomSuffix,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GuestSessionID returns the current guest id without creating one.
func (c *Context) GuestSessionID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

// GetOrCreateGuestSessionID returns the stored guest id, creating and
// persisting a new one when absent.
func (c *Context) GetOrCreateGuestSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.currentLocked(); ok {
		return id
	}
	return c.createLocked()
}

// ClearGuestSession removes the guest id. No-op if absent.
func (c *Context) ClearGuestSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(KeyGuestSessionID)
}

// ResetGuestIdentity deletes the current guest id and creates a fresh one as
// one step. old is empty when there was no guest id.
func (c *Context) ResetGuestIdentity() (old, fresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, _ = c.currentLocked()
	c.store.Delete(KeyGuestSessionID)

	fresh = c.createLocked()
	if fresh == old {
		// Same millisecond and an injected suffix source that repeats.
		fresh = cartdom.NewGuestSessionID(c.now(), randomSuffix())
		c.store.Set(KeyGuestSessionID, fresh)
	}
	return old, fresh
}

// MarkLoggedOut arms the logout flag for the next sync. Each call stores a
// new marker, so a sync that read an older marker cannot clear this one.
func (c *Context) MarkLoggedOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(KeyJustLoggedOut, uuid.NewString())
}

// LoggedOutMarker returns the armed logout marker, or "" when the flag is not
// set. It does not consume the flag.
func (c *Context) LoggedOutMarker() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store.Get(KeyJustLoggedOut)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// ClearLoggedOut consumes the flag only while it still holds marker. It
// reports whether this call cleared it.
func (c *Context) ClearLoggedOut(marker string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store.Get(KeyJustLoggedOut)
	if !ok || marker == "" || strings.TrimSpace(v) != marker {
		return false
	}
	c.store.Delete(KeyJustLoggedOut)
	return true
}

// TakeLoggedOut reads and clears the logout flag in one step. Only one caller
// sees true per MarkLoggedOut.
func (c *Context) TakeLoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.store.Get(KeyJustLoggedOut)
	if !ok {
		return false
	}
	c.store.Delete(KeyJustLoggedOut)
	return strings.TrimSpace(v) != ""
}

// PeekLoggedOut reports the flag without consuming it.
func (c *Context) PeekLoggedOut() bool {
	return c.LoggedOutMarker() != ""
}

func (c *Context) currentLocked() (string, bool) {
	id, ok := c.store.Get(KeyGuestSessionID)
	id = strings.TrimSpace(id)
	if !ok || !cartdom.ValidGuestSessionID(id) {
		return "", false
	}
	return id, true
}

func (c *Context) createLocked() string {
	id := cartdom.NewGuestSessionID(c.now(), c.random())
	c.store.Set(KeyGuestSessionID, id)
	return id
}

// randomSuffix takes 9 lowercase hex characters from a UUIDv4.
func randomSuffix() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:guestRandomLen]
}
