package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/adapters/out/memory"
	cartdom "storefront/internal/domain/cart"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const guestSID = "guest_1772366400000_k3j4h5g6f"

func newTestCartUsecase(t *testing.T, stock map[string]int) (*CartUsecase, *memory.CartRepositoryMem) {
	t.Helper()
	repo := memory.NewCartRepositoryMem()
	var catalog cartdom.ProductCatalog
	if stock != nil {
		catalog = memory.NewProductCatalogMem(stock)
	}
	uc := NewCartUsecaseWithClock(repo, catalog, nil, fixedClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	return uc, repo
}

func TestCartUsecase_GetMissing(t *testing.T) {
	uc, _ := newTestCartUsecase(t, nil)

	_, err := uc.Get(context.Background(), cartdom.UserKey("u1"))
	assert.ErrorIs(t, err, ErrCartNotFound)

	c, err := uc.GetOrEmpty(context.Background(), cartdom.UserKey("u1"))
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestCartUsecase_RejectsBadOwnerKey(t *testing.T) {
	uc, _ := newTestCartUsecase(t, nil)

	_, err := uc.AddItem(context.Background(), "guest:not-a-session", "p1", 1)
	assert.ErrorIs(t, err, ErrCartInvalidArgument)

	_, err = uc.AddItem(context.Background(), cartdom.UserKey("u1"), "", 1)
	assert.ErrorIs(t, err, ErrCartInvalidArgument)
}

func TestCartUsecase_ItemMutations(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestCartUsecase(t, nil)
	key := cartdom.GuestKey(guestSID)

	_, err := uc.AddItem(ctx, key, "p1", 2)
	require.NoError(t, err)
	_, err = uc.AddItem(ctx, key, "p2", 1)
	require.NoError(t, err)
	c, err := uc.SetItemQty(ctx, key, "p1", 5)
	require.NoError(t, err)
	assert.Equal(t, 6, c.TotalItems())

	c, err = uc.RemoveItem(ctx, key, "p2")
	require.NoError(t, err)
	assert.Equal(t, []cartdom.CartItem{{ProductID: "p1", Qty: 5}}, c.Items)

	require.NoError(t, uc.Clear(ctx, key))
	_, err = uc.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestCartUsecase_MergeGuestCart(t *testing.T) {
	ctx := context.Background()
	uc, repo := newTestCartUsecase(t, map[string]int{"p1": 10, "p2": 10, "p3": 2})

	_, err := uc.AddItem(ctx, cartdom.UserKey("u1"), "p1", 1)
	require.NoError(t, err)
	_, err = uc.AddItem(ctx, cartdom.GuestKey(guestSID), "p1", 2)
	require.NoError(t, err)

	merged, err := uc.MergeGuestCart(ctx, "u1", guestSID, []cartdom.CartItem{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 1},
		{ProductID: "p3", Qty: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, []cartdom.CartItem{
		{ProductID: "p1", Qty: 3},
		{ProductID: "p2", Qty: 1},
		{ProductID: "p3", Qty: 2},
	}, merged.Items)

	// guest cart consumed
	guest, err := repo.GetByID(ctx, cartdom.GuestKey(guestSID))
	require.NoError(t, err)
	assert.Nil(t, guest)

	// retry is a no-op
	again, err := uc.MergeGuestCart(ctx, "u1", guestSID, []cartdom.CartItem{{ProductID: "p1", Qty: 2}})
	require.NoError(t, err)
	assert.Equal(t, merged.Items, again.Items)
}

func TestCartUsecase_MergeUsesStoredGuestCartWhenPayloadEmpty(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestCartUsecase(t, nil)

	_, err := uc.AddItem(ctx, cartdom.GuestKey(guestSID), "p9", 4)
	require.NoError(t, err)

	merged, err := uc.MergeGuestCart(ctx, "u1", guestSID, nil)
	require.NoError(t, err)
	assert.Equal(t, []cartdom.CartItem{{ProductID: "p9", Qty: 4}}, merged.Items)
}

func TestCartUsecase_MergeConflictOnUnknownProduct(t *testing.T) {
	ctx := context.Background()
	uc, repo := newTestCartUsecase(t, map[string]int{"p1": 10})

	_, err := uc.MergeGuestCart(ctx, "u1", guestSID, []cartdom.CartItem{{ProductID: "nope", Qty: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCartMergeConflict))

	c, err := repo.GetByID(ctx, cartdom.UserKey("u1"))
	require.NoError(t, err)
	assert.Nil(t, c, "failed merge must not persist an account cart")
}

func TestCartUsecase_MergeConflictOnSoldOutProduct(t *testing.T) {
	ctx := context.Background()
	uc, repo := newTestCartUsecase(t, map[string]int{"p1": 0, "p2": 5})

	_, err := uc.MergeGuestCart(ctx, "u1", guestSID, []cartdom.CartItem{
		{ProductID: "p1", Qty: 1},
		{ProductID: "p2", Qty: 1},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCartMergeConflict))
	assert.Contains(t, err.Error(), "p1")

	c, err := repo.GetByID(ctx, cartdom.UserKey("u1"))
	require.NoError(t, err)
	assert.Nil(t, c, "failed merge must not persist an account cart")
}

func TestCartUsecase_MergeValidatesInput(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestCartUsecase(t, nil)

	_, err := uc.MergeGuestCart(ctx, "", guestSID, nil)
	assert.ErrorIs(t, err, ErrCartInvalidArgument)

	_, err = uc.MergeGuestCart(ctx, "u1", "bogus", nil)
	assert.ErrorIs(t, err, ErrCartInvalidArgument)

	_, err = uc.MergeGuestCart(ctx, "u1", guestSID, []cartdom.CartItem{{ProductID: "p1", Qty: 0}})
	assert.ErrorIs(t, err, ErrCartInvalidArgument)
}

func TestCartUsecase_ConcurrentMergeAppliesOnce(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestCartUsecase(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.MergeGuestCart(ctx, "u1", guestSID, []cartdom.CartItem{{ProductID: "p1", Qty: 1}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := uc.Get(ctx, cartdom.UserKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalItems())
}

func TestCartUsecase_OwnerLocksReleased(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestCartUsecase(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := fmt.Sprintf("guest_1772366400000_s%d", i%4)
			_, err := uc.AddItem(ctx, cartdom.GuestKey(sid), "p1", 1)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	_, err := uc.MergeGuestCart(ctx, "u1", guestSID, []cartdom.CartItem{{ProductID: "p1", Qty: 1}})
	require.NoError(t, err)
	require.NoError(t, uc.Clear(ctx, cartdom.UserKey("u2")))
	_, err = uc.GetOrCreate(ctx, cartdom.UserKey("u3"))
	require.NoError(t, err)

	assert.Zero(t, uc.locks.size(), "no lock entry outlives its callers")

	c, err := uc.Get(ctx, cartdom.GuestKey("guest_1772366400000_s0"))
	require.NoError(t, err)
	assert.Equal(t, 4, c.TotalItems(), "per-owner serialization still holds")
}

func TestCartUsecase_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCartRepositoryMem()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	old, err := cartdom.NewCart(cartdom.GuestKey(guestSID), nil, start)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, old))

	uc := NewCartUsecaseWithClock(repo, nil, nil, fixedClock{t: start.Add(72 * time.Hour)})
	n, err := uc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
