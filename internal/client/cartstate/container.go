// internal/client/cartstate/container.go
package cartstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SyncStatus is the coarse sync state shown to the user.
type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
)

var (
	// ErrSuperseded is returned when a newer operation started (Begin or
	// ClearAfterMerge) while this one was in flight. Its result was dropped.
	ErrSuperseded = errors.New("cartstate: superseded by a newer operation")

	ErrInvalidArgument = errors.New("cartstate: invalid argument")
	ErrNoService       = errors.New("cartstate: cart service not configured")
)

// Generation identifies one sync attempt.
type Generation uint64

// State is a copy of the container contents.
type State struct {
	Items      []Item
	TotalItems int
	SyncStatus SyncStatus
	Error      string
	Generation Generation
}

// MergePayload is what a guest contributes to a merge.
type MergePayload struct {
	Items     []Item
	SessionID string
}

// Container holds the single active cart of the current actor.
type Container struct {
	svc   CartService
	actor ActorFunc
	log   *zap.Logger

	mu    sync.Mutex
	state State

	// notifyMu is taken before mu is released so subscribers see changes in
	// commit order.
	notifyMu sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int

	fetches singleflight.Group
}

func New(svc CartService, actor ActorFunc, log *zap.Logger) *Container {
	if actor == nil {
		actor = func() Actor { return Actor{} }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Container{
		svc:   svc,
		actor: actor,
		log:   log.Named("cart_state"),
		state: State{SyncStatus: StatusIdle},
		subs:  map[int]func(State){},
	}
}

// ------------------------------------------------------------
// Reads / subscriptions
// ------------------------------------------------------------

func (c *Container) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Subscribe registers fn for every state change and calls it once with the
// current state. fn must not call mutating methods of the container; it may
// call cancel, after which it receives no further states.
func (c *Container) Subscribe(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	c.notifyMu.Lock()
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()
	st := c.copyLocked()
	c.mu.Unlock()
	fn(st)
	c.notifyMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// ------------------------------------------------------------
// Generations
// ------------------------------------------------------------

// Begin starts a new generation; results of every older in-flight operation
// will be discarded.
func (c *Container) Begin() Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Generation++
	return c.state.Generation
}

func (c *Container) Current() Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Generation
}

// ------------------------------------------------------------
// Remote operations
// ------------------------------------------------------------

// FetchCart loads the current actor's cart at the current generation.
func (c *Container) FetchCart(ctx context.Context) error {
	return c.FetchCartAt(ctx, c.Current())
}

// FetchCartAt loads the cart on behalf of generation g. On success items and
// total are replaced; on failure Error is set and items are left as they were.
// Concurrent fetches for the same generation and actor share one request.
func (c *Container) FetchCartAt(ctx context.Context, g Generation) error {
	if c.svc == nil {
		return ErrNoService
	}
	if !c.isCurrent(g) {
		return ErrSuperseded
	}

	actor := c.actor()
	key := fmt.Sprintf("%d|%t|%s", g, actor.Authenticated(), actor.GuestSessionID)

	_, err, shared := c.fetches.Do(key, func() (any, error) {
		remote, err := c.svc.GetCart(ctx, actor)
		if err != nil {
			return nil, c.fail(g, "fetch", err)
		}
		return nil, c.apply(g, remote)
	})
	if shared {
		c.log.Debug("fetch coalesced", zap.Uint64("generation", uint64(g)))
	}
	return err
}

// MergeGuestCart submits the guest payload at the current generation.
func (c *Container) MergeGuestCart(ctx context.Context, p MergePayload) error {
	return c.MergeGuestCartAt(ctx, c.Current(), p)
}

// MergeGuestCartAt asks the Cart Service to fold the guest items into the
// account cart and replaces the local cart with the merged result.
func (c *Container) MergeGuestCartAt(ctx context.Context, g Generation, p MergePayload) error {
	if c.svc == nil {
		return ErrNoService
	}
	sid := strings.TrimSpace(p.SessionID)
	if sid == "" {
		return fmt.Errorf("%w: sessionId is empty", ErrInvalidArgument)
	}
	if !c.isCurrent(g) {
		return ErrSuperseded
	}

	remote, err := c.svc.MergeCart(ctx, c.actor(), cloneItems(p.Items), sid)
	if err != nil {
		return c.fail(g, "merge", err)
	}
	return c.apply(g, remote)
}

func (c *Container) AddItem(ctx context.Context, productID string, qty int) error {
	pid := strings.TrimSpace(productID)
	if pid == "" || qty <= 0 {
		return fmt.Errorf("%w: productId/quantity", ErrInvalidArgument)
	}
	return c.mutate(ctx, "add", func(a Actor) (*RemoteCart, error) {
		return c.svc.AddItem(ctx, a, pid, qty)
	})
}

// UpdateQuantity sets the quantity of productID; qty <= 0 removes the line.
func (c *Container) UpdateQuantity(ctx context.Context, productID string, qty int) error {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return fmt.Errorf("%w: productId", ErrInvalidArgument)
	}
	return c.mutate(ctx, "update", func(a Actor) (*RemoteCart, error) {
		return c.svc.SetItemQty(ctx, a, pid, qty)
	})
}

func (c *Container) RemoveItem(ctx context.Context, productID string) error {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return fmt.Errorf("%w: productId", ErrInvalidArgument)
	}
	return c.mutate(ctx, "remove", func(a Actor) (*RemoteCart, error) {
		return c.svc.RemoveItem(ctx, a, pid)
	})
}

// mutate does not start a generation: a user edit must not cancel a running
// sync, but its result is still dropped if a newer sync began meanwhile.
func (c *Container) mutate(ctx context.Context, op string, call func(Actor) (*RemoteCart, error)) error {
	if c.svc == nil {
		return ErrNoService
	}
	g := c.Current()
	remote, err := call(c.actor())
	if err != nil {
		return c.fail(g, op, err)
	}
	return c.apply(g, remote)
}

// ------------------------------------------------------------
// Synchronous transitions
// ------------------------------------------------------------

// ClearAfterMerge empties the cart, resets the status to idle and supersedes
// every in-flight operation.
func (c *Container) ClearAfterMerge() {
	c.mu.Lock()
	c.state.Generation++
	c.state.Items = nil
	c.state.TotalItems = 0
	c.state.SyncStatus = StatusIdle
	c.state.Error = ""
	c.commitLocked()
}

// MarkSyncing moves to syncing. A finished sync (synced or error) is first
// returned to idle, and subscribers see that step.
func (c *Container) MarkSyncing(g Generation) error {
	c.mu.Lock()
	if g != c.state.Generation {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if c.state.SyncStatus == StatusSynced || c.state.SyncStatus == StatusError {
		c.state.SyncStatus = StatusIdle
		c.commitLocked()
		c.mu.Lock()
		if g != c.state.Generation {
			c.mu.Unlock()
			return ErrSuperseded
		}
	}
	c.state.SyncStatus = StatusSyncing
	c.commitLocked()
	return nil
}

func (c *Container) MarkSynced(g Generation) error {
	c.mu.Lock()
	if g != c.state.Generation {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.state.SyncStatus = StatusSynced
	c.state.Error = ""
	c.commitLocked()
	return nil
}

// MarkFailed moves to error. A nil err keeps the last recorded message.
func (c *Container) MarkFailed(g Generation, err error) error {
	c.mu.Lock()
	if g != c.state.Generation {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.state.SyncStatus = StatusError
	if err != nil {
		c.state.Error = err.Error()
	}
	c.commitLocked()
	return nil
}

// ------------------------------------------------------------
// internals
// ------------------------------------------------------------

func (c *Container) isCurrent(g Generation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return g == c.state.Generation
}

func (c *Container) apply(g Generation, remote *RemoteCart) error {
	c.mu.Lock()
	if g != c.state.Generation {
		c.mu.Unlock()
		c.log.Debug("dropping stale cart result", zap.Uint64("generation", uint64(g)))
		return ErrSuperseded
	}
	if remote == nil {
		c.state.Items = nil
		c.state.TotalItems = 0
	} else {
		c.state.Items = cloneItems(remote.Items)
		c.state.TotalItems = remote.TotalItems
		if c.state.TotalItems == 0 {
			c.state.TotalItems = totalOf(c.state.Items)
		}
	}
	c.state.Error = ""
	c.commitLocked()
	return nil
}

// fail records err unless g is stale; items are kept.
func (c *Container) fail(g Generation, op string, err error) error {
	c.mu.Lock()
	if g != c.state.Generation {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.state.Error = err.Error()
	c.commitLocked()

	c.log.Debug("cart operation failed", zap.String("op", op), zap.Error(err))
	return err
}

// commitLocked publishes the state and releases mu.
func (c *Container) commitLocked() {
	st := c.copyLocked()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	c.subsMu.Lock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.subsMu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		c.subsMu.Lock()
		fn, ok := c.subs[id]
		c.subsMu.Unlock()
		if ok {
			fn(st)
		}
	}
}

func (c *Container) copyLocked() State {
	st := c.state
	st.Items = cloneItems(c.state.Items)
	return st
}

func cloneItems(in []Item) []Item {
	if len(in) == 0 {
		return nil
	}
	out := make([]Item, len(in))
	copy(out, in)
	return out
}

func totalOf(items []Item) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
