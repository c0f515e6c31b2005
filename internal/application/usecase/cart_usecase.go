// internal/application/usecase/cart_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	cartdom "storefront/internal/domain/cart"
)

var (
	ErrCartInvalidArgument = errors.New("cart_usecase: invalid argument")
	ErrCartNotFound        = errors.New("cart_usecase: not found")
	ErrCartMergeConflict   = errors.New("cart_usecase: merge conflict")
)

// Clock provides current time (for testability).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// CartUsecase coordinates cart operations for both guest and account carts.
// Carts are addressed by owner key (cartdom.UserKey / cartdom.GuestKey).
type CartUsecase struct {
	repo    cartdom.Repository
	catalog cartdom.ProductCatalog
	clock   Clock
	log     *zap.Logger

	locks ownerLocks
}

// NewCartUsecase builds the usecase. catalog may be nil, in which case merges
// are not validated against stock.
func NewCartUsecase(repo cartdom.Repository, catalog cartdom.ProductCatalog, log *zap.Logger) *CartUsecase {
	return NewCartUsecaseWithClock(repo, catalog, log, nil)
}

// NewCartUsecaseWithClock is useful for tests.
func NewCartUsecaseWithClock(repo cartdom.Repository, catalog cartdom.ProductCatalog, log *zap.Logger, clock Clock) *CartUsecase {
	if clock == nil {
		clock = systemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CartUsecase{
		repo:    repo,
		catalog: catalog,
		clock:   clock,
		log:     log.Named("cart_usecase"),
	}
}

// Get returns the cart for ownerKey, or ErrCartNotFound.
func (uc *CartUsecase) Get(ctx context.Context, ownerKey string) (*cartdom.Cart, error) {
	key, err := normalizeOwnerKey(ownerKey)
	if err != nil {
		return nil, err
	}

	c, err := uc.repo.GetByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCartNotFound
	}
	return c, nil
}

// GetOrEmpty returns the stored cart, or an unsaved empty cart when absent.
func (uc *CartUsecase) GetOrEmpty(ctx context.Context, ownerKey string) (*cartdom.Cart, error) {
	key, err := normalizeOwnerKey(ownerKey)
	if err != nil {
		return nil, err
	}

	c, err := uc.repo.GetByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}
	return cartdom.NewCart(key, nil, uc.clock.Now())
}

// GetOrCreate returns an existing cart; if absent, creates an empty one and persists it.
func (uc *CartUsecase) GetOrCreate(ctx context.Context, ownerKey string) (*cartdom.Cart, error) {
	key, err := normalizeOwnerKey(ownerKey)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.lock(key)
	defer unlock()

	c, err := uc.repo.GetByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}

	c, err = cartdom.NewCart(key, nil, uc.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem increments qty for productID. qty must be >= 1.
func (uc *CartUsecase) AddItem(ctx context.Context, ownerKey, productID string, qty int) (*cartdom.Cart, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" || qty <= 0 {
		return nil, ErrCartInvalidArgument
	}
	return uc.mutate(ctx, ownerKey, func(c *cartdom.Cart, now time.Time) error {
		return c.Add(pid, qty, now)
	})
}

// SetItemQty sets qty for productID. qty <= 0 removes the item.
func (uc *CartUsecase) SetItemQty(ctx context.Context, ownerKey, productID string, qty int) (*cartdom.Cart, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return nil, ErrCartInvalidArgument
	}
	return uc.mutate(ctx, ownerKey, func(c *cartdom.Cart, now time.Time) error {
		return c.SetQty(pid, qty, now)
	})
}

// RemoveItem removes productID from the cart.
func (uc *CartUsecase) RemoveItem(ctx context.Context, ownerKey, productID string) (*cartdom.Cart, error) {
	return uc.SetItemQty(ctx, ownerKey, productID, 0)
}

// Clear deletes the cart doc.
func (uc *CartUsecase) Clear(ctx context.Context, ownerKey string) error {
	key, err := normalizeOwnerKey(ownerKey)
	if err != nil {
		return err
	}

	unlock := uc.locks.lock(key)
	defer unlock()

	return uc.repo.DeleteByID(ctx, key)
}

// MergeGuestCart folds a guest cart into the account cart of uid.
//
// items is the guest cart as the client holds it; when it is empty the stored
// guest cart for sessionID is used instead. Quantities combine by product and
// are clamped to available stock. Unknown or sold-out products fail the whole
// merge with ErrCartMergeConflict. After a successful merge the guest cart is
// deleted and sessionID is remembered, so a retried merge returns the account
// cart as is.
func (uc *CartUsecase) MergeGuestCart(ctx context.Context, uid, sessionID string, items []cartdom.CartItem) (*cartdom.Cart, error) {
	uid = strings.TrimSpace(uid)
	sessionID = strings.TrimSpace(sessionID)
	if uid == "" {
		return nil, ErrCartInvalidArgument
	}
	if sessionID != "" && !cartdom.ValidGuestSessionID(sessionID) {
		return nil, fmt.Errorf("%w: malformed sessionId", ErrCartInvalidArgument)
	}
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" || it.Qty <= 0 {
			return nil, fmt.Errorf("%w: guest items need productId and quantity >= 1", ErrCartInvalidArgument)
		}
	}

	userKey := cartdom.UserKey(uid)
	unlock := uc.locks.lock(userKey)
	defer unlock()

	now := uc.clock.Now()

	account, err := uc.repo.GetByID(ctx, userKey)
	if err != nil {
		return nil, err
	}
	if account == nil {
		if account, err = cartdom.NewCart(userKey, nil, now); err != nil {
			return nil, err
		}
	}

	if sessionID != "" && account.HasMerged(sessionID) {
		uc.log.Info("merge skipped: session already merged",
			zap.String("cartId", userKey),
			zap.String("sessionId", sessionID),
		)
		return account, nil
	}

	guestKey := ""
	if sessionID != "" {
		guestKey = cartdom.GuestKey(sessionID)
	}

	incoming := cartdom.NormalizeItems(items)
	if len(incoming) == 0 && guestKey != "" {
		stored, err := uc.repo.GetByID(ctx, guestKey)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			incoming = stored.Items
		}
	}

	limits, err := uc.resolveLimits(ctx, incoming)
	if err != nil {
		return nil, err
	}

	if err := account.Merge(incoming, limits, now); err != nil {
		if errors.Is(err, cartdom.ErrUnknownProduct) || errors.Is(err, cartdom.ErrOutOfStock) {
			return nil, fmt.Errorf("%w: %v", ErrCartMergeConflict, err)
		}
		return nil, err
	}
	account.MarkMerged(sessionID)

	if err := uc.repo.Upsert(ctx, account); err != nil {
		return nil, err
	}

	if guestKey != "" {
		if err := uc.repo.DeleteByID(ctx, guestKey); err != nil {
			// the account cart is already correct; a leftover guest cart expires on its own
			uc.log.Warn("guest cart delete after merge failed",
				zap.String("guestCartId", guestKey),
				zap.Error(err),
			)
		}
	}

	uc.log.Info("guest cart merged",
		zap.String("cartId", userKey),
		zap.String("sessionId", sessionID),
		zap.Int("guestLines", len(incoming)),
		zap.Int("totalItems", account.TotalItems()),
	)
	return account, nil
}

// PurgeExpired deletes every cart past its expiry.
func (uc *CartUsecase) PurgeExpired(ctx context.Context) (int, error) {
	n, err := uc.repo.DeleteExpired(ctx, uc.clock.Now())
	if err != nil {
		return n, err
	}
	uc.log.Info("expired carts purged", zap.Int("deleted", n))
	return n, nil
}

// -------------------------
// helpers
// -------------------------

func (uc *CartUsecase) mutate(ctx context.Context, ownerKey string, fn func(c *cartdom.Cart, now time.Time) error) (*cartdom.Cart, error) {
	key, err := normalizeOwnerKey(ownerKey)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.lock(key)
	defer unlock()

	now := uc.clock.Now()

	c, err := uc.repo.GetByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if c == nil {
		if c, err = cartdom.NewCart(key, nil, now); err != nil {
			return nil, err
		}
	}

	if err := fn(c, now); err != nil {
		return nil, err
	}
	if err := uc.repo.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// resolveLimits asks the catalog for every incoming product. nil catalog
// means "no limits".
func (uc *CartUsecase) resolveLimits(ctx context.Context, items []cartdom.CartItem) (map[string]int, error) {
	if uc.catalog == nil {
		return nil, nil
	}
	limits := make(map[string]int, len(items))
	for _, it := range items {
		stock, ok, err := uc.catalog.Availability(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("cart_usecase: availability %s: %w", it.ProductID, err)
		}
		if ok {
			if stock < 0 {
				stock = 0
			}
			limits[it.ProductID] = stock
		}
	}
	return limits, nil
}

func normalizeOwnerKey(ownerKey string) (string, error) {
	key := strings.TrimSpace(ownerKey)
	if _, _, err := cartdom.ParseOwnerKey(key); err != nil {
		return "", ErrCartInvalidArgument
	}
	return key, nil
}

// ownerLocks serializes read-modify-write cycles per cart within this process.
// An entry lives only while some caller holds or waits for it.
type ownerLocks struct {
	mu sync.Mutex
	m  map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func (l *ownerLocks) lock(key string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = map[string]*ownerLock{}
	}
	e := l.m[key]
	if e == nil {
		e = &ownerLock{}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *ownerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
