package cartsync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storefront/internal/client/cartstate"
	"storefront/internal/client/session"
)

var errNetwork = errors.New("network failure: connection reset")

// fakeCartService behaves like the Cart Service: account carts by token,
// guest carts by session id, merge folds a guest cart into the account cart.
type fakeCartService struct {
	mu       sync.Mutex
	accounts map[string][]cartstate.Item
	guests   map[string][]cartstate.Item

	getErr   error
	mergeErr error

	// mergeGate, when set, blocks MergeCart until closed.
	mergeGate chan struct{}
	// getGate, when set, blocks GetCart until closed.
	getGate chan struct{}

	gets          atomic.Int32
	merges        atomic.Int32
	mergePayloads [][]cartstate.Item
}

func newFakeCartService() *fakeCartService {
	return &fakeCartService{
		accounts: map[string][]cartstate.Item{},
		guests:   map[string][]cartstate.Item{},
	}
}

func (f *fakeCartService) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeCartService) setMergeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergeErr = err
}

func (f *fakeCartService) cartOf(a cartstate.Actor) []cartstate.Item {
	if a.Authenticated() {
		return f.accounts[a.IDToken]
	}
	return f.guests[a.GuestSessionID]
}

func (f *fakeCartService) store(a cartstate.Actor, items []cartstate.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	if a.Authenticated() {
		f.accounts[a.IDToken] = items
		return
	}
	f.guests[a.GuestSessionID] = items
}

func remoteOf(items []cartstate.Item) *cartstate.RemoteCart {
	out := append([]cartstate.Item(nil), items...)
	total := 0
	for _, it := range out {
		total += it.Quantity
	}
	return &cartstate.RemoteCart{Items: out, TotalItems: total}
}

func (f *fakeCartService) GetCart(ctx context.Context, a cartstate.Actor) (*cartstate.RemoteCart, error) {
	f.gets.Add(1)
	f.mu.Lock()
	gate := f.getGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return remoteOf(f.cartOf(a)), nil
}

func (f *fakeCartService) MergeCart(ctx context.Context, a cartstate.Actor, items []cartstate.Item, sid string) (*cartstate.RemoteCart, error) {
	f.merges.Add(1)
	f.mu.Lock()
	gate := f.mergeGate
	f.mergePayloads = append(f.mergePayloads, append([]cartstate.Item(nil), items...))
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	if !a.Authenticated() {
		return nil, errors.New("merge requires authentication")
	}

	byID := map[string]int{}
	for _, it := range f.accounts[a.IDToken] {
		byID[it.ProductID] += it.Quantity
	}
	for _, it := range items {
		byID[it.ProductID] += it.Quantity
	}
	merged := make([]cartstate.Item, 0, len(byID))
	for id, q := range byID {
		merged = append(merged, cartstate.Item{ProductID: id, Quantity: q})
	}
	f.store(a, merged)
	delete(f.guests, sid)
	return remoteOf(f.accounts[a.IDToken]), nil
}

func (f *fakeCartService) AddItem(_ context.Context, a cartstate.Actor, pid string, qty int) (*cartstate.RemoteCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := append([]cartstate.Item(nil), f.cartOf(a)...)
	found := false
	for i := range items {
		if items[i].ProductID == pid {
			items[i].Quantity += qty
			found = true
		}
	}
	if !found {
		items = append(items, cartstate.Item{ProductID: pid, Quantity: qty})
	}
	f.store(a, items)
	return remoteOf(f.cartOf(a)), nil
}

func (f *fakeCartService) SetItemQty(_ context.Context, a cartstate.Actor, pid string, qty int) (*cartstate.RemoteCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []cartstate.Item
	for _, it := range f.cartOf(a) {
		if it.ProductID == pid {
			if qty <= 0 {
				continue
			}
			it.Quantity = qty
		}
		items = append(items, it)
	}
	f.store(a, items)
	return remoteOf(f.cartOf(a)), nil
}

func (f *fakeCartService) RemoveItem(ctx context.Context, a cartstate.Actor, pid string) (*cartstate.RemoteCart, error) {
	return f.SetItemQty(ctx, a, pid, 0)
}

// harness wires a real container and session context to the fake service.
type harness struct {
	svc    *fakeCartService
	sess   *session.Context
	cart   *cartstate.Container
	orch   *Orchestrator
	logout *LogoutHandler

	mu    sync.Mutex
	token string
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{svc: newFakeCartService()}

	var tick atomic.Int64
	h.sess = session.NewContext(session.NewMemoryStorage(), session.WithClock(func() time.Time {
		return t0.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	}))
	h.cart = cartstate.New(h.svc, h.actor, nil)
	h.orch = NewOrchestrator(h.cart, h.sess, nil)
	h.logout = NewLogoutHandler(h.cart, h.sess, nil)
	return h
}

func (h *harness) actor() cartstate.Actor {
	h.mu.Lock()
	tok := h.token
	h.mu.Unlock()
	sid, _ := h.sess.GuestSessionID()
	return cartstate.Actor{IDToken: tok, GuestSessionID: sid}
}

func (h *harness) setToken(tok string) {
	h.mu.Lock()
	h.token = tok
	h.mu.Unlock()
}

// addGuestItems adds items as the guest, creating the guest session.
func (h *harness) addGuestItems(t *testing.T, items ...cartstate.Item) {
	t.Helper()
	h.sess.GetOrCreateGuestSessionID()
	for _, it := range items {
		require.NoError(t, h.cart.AddItem(context.Background(), it.ProductID, it.Quantity))
	}
}

func (h *harness) login(ctx context.Context, tok string) Result {
	h.setToken(tok)
	return h.orch.Sync(ctx, AuthEvent{IsAuthenticated: true, AuthJustChanged: true})
}

func productIDs(items []cartstate.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductID)
	}
	sort.Strings(out)
	return out
}
