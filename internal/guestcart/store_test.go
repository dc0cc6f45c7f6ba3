package guestcart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/model"
	"go-storefront-session/internal/storage"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	mug   = model.Product{ID: "A", Name: "Mug", Price: 10, OriginalPrice: 12, Images: []string{"mug.png"}, IsActive: true}
	plant = model.Product{ID: "B", Name: "Plant", Price: 25.5, IsActive: true}
)

func newStore(t *testing.T) (*Store, *storage.Memory, *clock.Fake) {
	t.Helper()

	mem := storage.NewMemory()
	fake := clock.NewFake(start)
	return New(mem, WithClock(fake)), mem, fake
}

func quantities(cart []model.LocalCartEntry) map[string]int {
	out := make(map[string]int, len(cart))
	for _, e := range cart {
		out[e.ProductID] = e.Quantity
	}
	return out
}

func TestAddMergesExistingProduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _, fake := newStore(t)

	store.Add(ctx, mug, 2)
	store.Add(ctx, plant, 1)
	fake.Advance(time.Hour)
	cart := store.Add(ctx, mug, 3)

	require.Len(t, cart, 2)
	require.Equal(t, map[string]int{"A": 5, "B": 1}, quantities(store.Cart(ctx)))

	entry, ok := store.Item(ctx, "A")
	require.True(t, ok)
	require.True(t, entry.AddedAt.Equal(start.Add(time.Hour)))
	require.Equal(t, "Mug", entry.Product.Name)
	require.Equal(t, []string{"mug.png"}, entry.Product.Images)
}

func TestAddIgnoresNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mem, _ := newStore(t)

	store.Add(ctx, mug, 0)
	store.Add(ctx, mug, -2)

	require.True(t, store.IsEmpty(ctx))
	require.Empty(t, mem.Snapshot())
}

func TestExpiredCartIsPurgedOnRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mem, fake := newStore(t)
	store.Add(ctx, mug, 2)
	store.Add(ctx, plant, 1)

	require.NoError(t, mem.Set(ctx, KeyExpiry, start.Add(-time.Minute).Format(time.RFC3339)))

	require.Empty(t, store.Cart(ctx))
	_, ok, err := mem.Get(ctx, KeyCart)
	require.NoError(t, err)
	require.False(t, ok, "stale entries must be gone from storage")

	fake.Advance(time.Hour)
	require.Empty(t, store.Cart(ctx))
	require.True(t, store.IsExpired(ctx))
}

func TestExpirySlidesOnEveryWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _, fake := newStore(t)

	store.Add(ctx, mug, 1)
	expiry, ok := store.ExpiryDate(ctx)
	require.True(t, ok)
	require.True(t, expiry.Equal(start.Add(DefaultTTL)))
	require.Equal(t, 30, store.DaysUntilExpiry(ctx))

	fake.Advance(20 * 24 * time.Hour)
	require.Equal(t, 10, store.DaysUntilExpiry(ctx))
	store.UpdateQuantity(ctx, "A", 4)

	expiry, _ = store.ExpiryDate(ctx)
	require.True(t, expiry.Equal(start.Add(20*24*time.Hour+DefaultTTL)))

	fake.Advance(29*24*time.Hour + time.Hour)
	require.False(t, store.IsExpired(ctx))
	require.Equal(t, 1, store.DaysUntilExpiry(ctx))
	require.Equal(t, 4, store.ItemCount(ctx))

	fake.Advance(24 * time.Hour)
	require.True(t, store.IsExpired(ctx))
	require.Zero(t, store.DaysUntilExpiry(ctx))
	require.True(t, store.IsEmpty(ctx))
}

func TestMissingMarkerPurgesEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mem, _ := newStore(t)
	require.NoError(t, mem.Set(ctx, KeyCart, `[{"productId":"A","quantity":1}]`))

	require.Empty(t, store.Cart(ctx))
	require.Empty(t, mem.Snapshot())
}

func TestUpdateQuantityAndRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mem, _ := newStore(t)
	store.Add(ctx, mug, 2)
	store.Add(ctx, plant, 1)

	before := mem.Snapshot()
	store.UpdateQuantity(ctx, "missing", 3)
	require.Equal(t, before, mem.Snapshot(), "unknown products are not written")

	require.Equal(t, map[string]int{"A": 7, "B": 1}, quantities(store.UpdateQuantity(ctx, "A", 7)))
	require.Equal(t, map[string]int{"B": 1}, quantities(store.UpdateQuantity(ctx, "A", 0)))
	require.Empty(t, store.Remove(ctx, "B"))

	store.Add(ctx, mug, 1)
	store.Clear(ctx)
	require.True(t, store.IsEmpty(ctx))
	_, ok := store.ExpiryDate(ctx)
	require.False(t, ok)
}

func TestDerivedTotals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _, _ := newStore(t)
	store.Add(ctx, mug, 2)
	store.Add(ctx, plant, 2)

	assert.Equal(t, 4, store.ItemCount(ctx))
	assert.InDelta(t, 71.0, store.Total(ctx), 1e-9)
	assert.False(t, store.IsEmpty(ctx))
}

func TestCorruptedCartDegradesToEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mem, _ := newStore(t)
	require.NoError(t, mem.SetMany(ctx, map[string]string{
		KeyCart:   "{oops",
		KeyExpiry: start.Add(time.Hour).Format(time.RFC3339),
	}))

	require.NotPanics(t, func() { require.Empty(t, store.Cart(ctx)) })

	cart := store.Add(ctx, mug, 1)
	require.Len(t, cart, 1)
}

func TestStorageFailuresDegradeToEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("quota exceeded")
	st := &storage.MockStorage{}
	st.On("Get", mock.Anything, mock.Anything).Return("", false, boom)
	st.On("SetMany", mock.Anything, mock.Anything).Return(boom)
	st.On("Remove", mock.Anything, mock.Anything).Return(boom)

	store := New(st, WithClock(clock.NewFake(start)))

	require.NotPanics(t, func() {
		cart := store.Add(ctx, mug, 1)
		require.Len(t, cart, 1)
		store.Clear(ctx)
	})
	require.True(t, store.IsEmpty(ctx))
	require.True(t, store.IsExpired(ctx))
	st.AssertCalled(t, "SetMany", mock.Anything, mock.Anything)
}

func TestMirror(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _, _ := newStore(t)

	_, ok := store.LoadMirror(ctx, "u1")
	require.False(t, ok)

	items := []model.CartItem{{Product: mug.Snapshot(), Quantity: 2, AddedAt: start}}
	store.SaveMirror(ctx, "u1", items)

	got, ok := store.LoadMirror(ctx, "u1")
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, 2, got[0].Quantity)

	_, ok = store.LoadMirror(ctx, "u2")
	require.False(t, ok, "another user's mirror is never served")

	require.True(t, store.IsEmpty(ctx), "the mirror is not the guest cart")

	store.ClearMirror(ctx)
	_, ok = store.LoadMirror(ctx, "u1")
	require.False(t, ok)
}
