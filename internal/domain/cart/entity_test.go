package cart

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewCart_NormalizesItems(t *testing.T) {
	c, err := NewCart(UserKey("u1"), []CartItem{
		{ProductID: " p2 ", Qty: 1},
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 3},
		{ProductID: "", Qty: 5},
		{ProductID: "p3", Qty: 0},
	}, t0)
	require.NoError(t, err)

	assert.Equal(t, []CartItem{{ProductID: "p1", Qty: 2}, {ProductID: "p2", Qty: 4}}, c.Items)
	assert.Equal(t, 6, c.TotalItems())
	assert.Equal(t, t0.Add(DefaultCartTTL), c.ExpiresAt)
}

func TestNewCart_GuestTTL(t *testing.T) {
	c, err := NewCart(GuestKey("guest_1700000000000_abc123def"), nil, t0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(DefaultGuestCartTTL), c.ExpiresAt)
	assert.Empty(t, c.Items)
}

func TestNewCart_RequiresID(t *testing.T) {
	_, err := NewCart("  ", nil, t0)
	assert.ErrorIs(t, err, ErrInvalidCart)
}

func TestCart_AddSetRemove(t *testing.T) {
	c, err := NewCart(UserKey("u1"), nil, t0)
	require.NoError(t, err)

	later := t0.Add(time.Minute)
	require.NoError(t, c.Add("p1", 2, later))
	require.NoError(t, c.Add("p1", 1, later))
	assert.Equal(t, []CartItem{{ProductID: "p1", Qty: 3}}, c.Items)
	assert.Equal(t, later, c.UpdatedAt)

	require.NoError(t, c.SetQty("p2", 5, later))
	require.NoError(t, c.SetQty("p1", 1, later))
	assert.Equal(t, []CartItem{{ProductID: "p1", Qty: 1}, {ProductID: "p2", Qty: 5}}, c.Items)

	require.NoError(t, c.Remove("p1", later))
	assert.Equal(t, []CartItem{{ProductID: "p2", Qty: 5}}, c.Items)

	assert.ErrorIs(t, c.Add("p1", 0, later), ErrInvalidCart)
	assert.ErrorIs(t, c.Add(" ", 1, later), ErrInvalidCart)
}

func TestCart_Clear(t *testing.T) {
	c, err := NewCart(UserKey("u1"), []CartItem{{ProductID: "p1", Qty: 2}}, t0)
	require.NoError(t, err)

	snap, err := c.Clear(t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []CartItem{{ProductID: "p1", Qty: 2}}, snap)
	assert.Empty(t, c.Items)
	assert.Zero(t, c.TotalItems())
}

func TestCart_MergeCombinesByProduct(t *testing.T) {
	c, err := NewCart(UserKey("u1"), []CartItem{{ProductID: "p1", Qty: 1}}, t0)
	require.NoError(t, err)

	err = c.Merge([]CartItem{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p2", Qty: 1},
		{ProductID: "p2", Qty: 1},
	}, nil, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, []CartItem{{ProductID: "p1", Qty: 3}, {ProductID: "p2", Qty: 2}}, c.Items)
}

func TestCart_MergeIntoEmptyPreservesProductSet(t *testing.T) {
	for n := 0; n <= 5; n++ {
		c, err := NewCart(UserKey("u1"), nil, t0)
		require.NoError(t, err)

		guest := make([]CartItem, 0, n)
		want := map[string]bool{}
		for i := 0; i < n; i++ {
			pid := string(rune('a' + i))
			guest = append(guest, CartItem{ProductID: pid, Qty: i + 1})
			want[pid] = true
		}

		require.NoError(t, c.Merge(guest, nil, t0))

		got := map[string]bool{}
		for _, it := range c.Items {
			got[it.ProductID] = true
		}
		assert.Equal(t, want, got, "n=%d", n)
	}
}

func TestCart_MergeClampsToStock(t *testing.T) {
	c, err := NewCart(UserKey("u1"), []CartItem{{ProductID: "p1", Qty: 4}, {ProductID: "p3", Qty: 1}}, t0)
	require.NoError(t, err)

	err = c.Merge([]CartItem{
		{ProductID: "p1", Qty: 4},
		{ProductID: "p2", Qty: 2},
		{ProductID: "p3", Qty: 1},
	}, map[string]int{"p1": 5, "p2": 10, "p3": 1}, t0)
	require.NoError(t, err)

	assert.Equal(t, []CartItem{{ProductID: "p1", Qty: 5}, {ProductID: "p2", Qty: 2}, {ProductID: "p3", Qty: 1}}, c.Items)
}

func TestCart_MergeRejectsUnknownProduct(t *testing.T) {
	c, err := NewCart(UserKey("u1"), []CartItem{{ProductID: "p1", Qty: 1}}, t0)
	require.NoError(t, err)

	err = c.Merge([]CartItem{{ProductID: "p1", Qty: 1}, {ProductID: "ghost", Qty: 1}}, map[string]int{"p1": 9}, t0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProduct))
	assert.Contains(t, err.Error(), "ghost")

	// nothing applied
	assert.Equal(t, []CartItem{{ProductID: "p1", Qty: 1}}, c.Items)
}

func TestCart_MergeRejectsSoldOutProduct(t *testing.T) {
	c, err := NewCart(UserKey("u1"), []CartItem{{ProductID: "p1", Qty: 2}}, t0)
	require.NoError(t, err)

	err = c.Merge([]CartItem{{ProductID: "p1", Qty: 1}, {ProductID: "p2", Qty: 1}}, map[string]int{"p1": 0, "p2": 5}, t0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfStock))
	assert.Contains(t, err.Error(), "p1")

	// the account line survives and p2 is not added
	assert.Equal(t, []CartItem{{ProductID: "p1", Qty: 2}}, c.Items)
}

func TestCart_Expired(t *testing.T) {
	c, err := NewCart(UserKey("u1"), nil, t0)
	require.NoError(t, err)

	assert.False(t, c.Expired(t0))
	assert.True(t, c.Expired(t0.Add(DefaultCartTTL)))
}

func TestCart_MarkMerged(t *testing.T) {
	c, err := NewCart(UserKey("u1"), nil, t0)
	require.NoError(t, err)

	assert.False(t, c.HasMerged("s1"))
	c.MarkMerged("s1")
	c.MarkMerged("s1")
	assert.True(t, c.HasMerged("s1"))
	assert.Equal(t, []string{"s1"}, c.MergedSessions)

	for i := 0; i < MaxMergedSessions+5; i++ {
		c.MarkMerged(string(rune('A' + i)))
	}
	assert.Len(t, c.MergedSessions, MaxMergedSessions)
	assert.False(t, c.HasMerged("s1"))
}

func TestCart_MergeTable(t *testing.T) {
	tests := []struct {
		name    string
		account []CartItem
		guest   []CartItem
		limits  map[string]int
		want    []CartItem
	}{
		{
			name:  "no limits sums quantities",
			guest: []CartItem{{ProductID: "p1", Qty: 1}, {ProductID: "p1", Qty: 2}},
			want:  []CartItem{{ProductID: "p1", Qty: 3}},
		},
		{
			name:    "account lines stay when guest is empty",
			account: []CartItem{{ProductID: "p2", Qty: 4}},
			want:    []CartItem{{ProductID: "p2", Qty: 4}},
		},
		{
			name:    "clamp applies to the combined quantity",
			account: []CartItem{{ProductID: "p1", Qty: 3}},
			guest:   []CartItem{{ProductID: "p1", Qty: 3}},
			limits:  map[string]int{"p1": 5},
			want:    []CartItem{{ProductID: "p1", Qty: 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCart(UserKey("u1"), tt.account, t0)
			require.NoError(t, err)
			require.NoError(t, c.Merge(tt.guest, tt.limits, t0.Add(time.Minute)))
			if diff := cmp.Diff(tt.want, c.Items); diff != "" {
				t.Errorf("items mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
