package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront/internal/apperror"
	"storefront/internal/localstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) GetCart(ctx context.Context) (Cart, error) {
	args := m.Called(ctx)
	return args.Get(0).(Cart), args.Error(1)
}

func (m *mockRemote) AddItem(ctx context.Context, productID string, quantity int, variation *Variation) (Cart, error) {
	args := m.Called(ctx, productID, quantity, variation)
	return args.Get(0).(Cart), args.Error(1)
}

func (m *mockRemote) RemoveItem(ctx context.Context, itemID string) (Cart, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).(Cart), args.Error(1)
}

func (m *mockRemote) UpdateItem(ctx context.Context, itemID string, quantity int) (Cart, error) {
	args := m.Called(ctx, itemID, quantity)
	return args.Get(0).(Cart), args.Error(1)
}

func (m *mockRemote) Clear(ctx context.Context) (Cart, error) {
	args := m.Called(ctx)
	return args.Get(0).(Cart), args.Error(1)
}

func (m *mockRemote) Sync(ctx context.Context, local Cart) (Cart, error) {
	args := m.Called(ctx, local)
	return args.Get(0).(Cart), args.Error(1)
}

type stubProducts map[string]Product

func (s stubProducts) GetProductByID(_ context.Context, id string) (Product, error) {
	p, ok := s[id]
	if !ok {
		return Product{}, apperror.NotFound("product %q not found", id)
	}
	return p, nil
}

type failingStore struct {
	*localstore.Memory
	setErr error
}

func (f failingStore) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Memory.Set(ctx, key, value)
}

var catalog = stubProducts{
	"p1": {ID: "p1", Name: "Mug", Price: 12, Stock: 10},
	"p2": {ID: "p2", Name: "Shirt", Price: 20, SalePrice: ptr(15.0), Stock: 3},
}

func ptr(f float64) *float64 { return &f }

func storedCart(t *testing.T, s LocalStore) (Cart, bool) {
	t.Helper()
	raw, ok, err := s.Get(context.Background(), DefaultStorageKey)
	require.NoError(t, err)
	if !ok {
		return Cart{}, false
	}
	var c Cart
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c, true
}

func guestEngine(t *testing.T) (*Engine, *localstore.Memory) {
	t.Helper()
	store := localstore.NewMemory()
	e := NewEngine(&mockRemote{}, catalog, store)
	require.NoError(t, e.Initialize(context.Background(), AuthUnauthenticated))
	return e, store
}

func TestTotalAndItemCount(t *testing.T) {
	c := Cart{Items: []Item{
		{Product: Product{Price: 10}, Quantity: 2},
		{Product: Product{Price: 20, SalePrice: ptr(5)}, Quantity: 1},
	}}

	assert.True(t, decimal.NewFromInt(25).Equal(c.Total()), "got %s", c.Total())
	assert.Equal(t, 3, c.ItemCount())
}

func TestKey(t *testing.T) {
	a := &Variation{VariantID: "v1", Options: map[string]string{"size": "M", "color": "red"}}
	b := &Variation{VariantID: "v1", Options: map[string]string{"color": "red", "size": "M"}}

	assert.Equal(t, Key("p1", a), Key("p1", b))
	assert.NotEqual(t, Key("p1", a), Key("p1", nil))
	assert.Equal(t, Key("p1", nil), Key("p1", &Variation{}))
	assert.NotEqual(t, Key("p1", nil), Key("p2", nil))
}

func TestEngine_Lifecycle(t *testing.T) {
	e := NewEngine(&mockRemote{}, catalog, localstore.NewMemory())
	assert.Equal(t, StateUninitialized, e.State())

	require.NoError(t, e.Initialize(context.Background(), AuthPending))
	assert.Equal(t, StateUninitialized, e.State())
	assert.ErrorIs(t, e.AddItem(context.Background(), "p1", 1, nil), ErrNotReady)

	require.NoError(t, e.Initialize(context.Background(), AuthUnauthenticated))
	assert.Equal(t, StateReady, e.State())
}

func TestEngine_GuestInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("Corrupt storage yields empty cart", func(t *testing.T) {
		store := localstore.NewMemory()
		require.NoError(t, store.Set(ctx, DefaultStorageKey, "{not json"))

		e := NewEngine(&mockRemote{}, catalog, store)
		require.NoError(t, e.Initialize(ctx, AuthUnauthenticated))
		assert.True(t, e.Cart().IsEmpty())
	})

	t.Run("Missing storage yields empty cart", func(t *testing.T) {
		e := NewEngine(&mockRemote{}, catalog, localstore.NewMemory())
		require.NoError(t, e.Initialize(ctx, AuthUnauthenticated))
		assert.NotNil(t, e.Cart().Items)
		assert.Empty(t, e.Cart().Items)
	})

	t.Run("Stored cart is read back", func(t *testing.T) {
		store := localstore.NewMemory()
		require.NoError(t, store.Set(ctx, DefaultStorageKey, `{"items":[{"_id":"l1","product":{"_id":"p1","price":12,"stock":10},"quantity":4,"variation":null}]}`))

		e := NewEngine(&mockRemote{}, catalog, store)
		require.NoError(t, e.Initialize(ctx, AuthUnauthenticated))
		assert.Equal(t, 4, e.ItemCount())
	})
}

func TestEngine_GuestAddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("Same product twice merges into one line", func(t *testing.T) {
		e, store := guestEngine(t)

		require.NoError(t, e.AddItem(ctx, "p1", 2, nil))
		require.NoError(t, e.AddItem(ctx, "p1", 3, nil))

		c := e.Cart()
		require.Len(t, c.Items, 1)
		assert.Equal(t, 5, c.Items[0].Quantity)
		assert.NotEmpty(t, c.Items[0].ID)

		persisted, ok := storedCart(t, store)
		require.True(t, ok)
		assert.Equal(t, c, persisted)
	})

	t.Run("Different variations are distinct lines", func(t *testing.T) {
		e, _ := guestEngine(t)

		require.NoError(t, e.AddItem(ctx, "p1", 1, &Variation{VariantID: "red"}))
		require.NoError(t, e.AddItem(ctx, "p1", 1, &Variation{VariantID: "blue"}))
		require.NoError(t, e.AddItem(ctx, "p1", 1, nil))

		assert.Len(t, e.Cart().Items, 3)
	})

	t.Run("Quantity above stock is rejected and cart unchanged", func(t *testing.T) {
		e, store := guestEngine(t)
		require.NoError(t, e.AddItem(ctx, "p2", 1, nil))
		before := e.Cart()

		err := e.AddItem(ctx, "p2", 5, nil)
		assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
		assert.Equal(t, before, e.Cart())

		persisted, _ := storedCart(t, store)
		assert.Equal(t, before, persisted)
	})

	t.Run("Combined quantity is not re-checked against stock", func(t *testing.T) {
		e, _ := guestEngine(t)

		require.NoError(t, e.AddItem(ctx, "p2", 3, nil))
		require.NoError(t, e.AddItem(ctx, "p2", 3, nil))

		assert.Equal(t, 6, e.Cart().Items[0].Quantity, "line exceeds stock of 3")
	})

	t.Run("Returned cart does not alias engine state", func(t *testing.T) {
		e, store := guestEngine(t)
		variation := &Variation{VariantID: "red", Options: map[string]string{"size": "M"}}
		require.NoError(t, e.AddItem(ctx, "p2", 1, variation))

		variation.VariantID = "green"
		c := e.Cart()
		c.Items[0].Variation.VariantID = "blue"
		c.Items[0].Variation.Options["size"] = "XL"
		*c.Items[0].Product.SalePrice = 1

		got := e.Cart().Items[0]
		assert.Equal(t, "red", got.Variation.VariantID)
		assert.Equal(t, "M", got.Variation.Options["size"])
		assert.Equal(t, 15.0, *got.Product.SalePrice)

		persisted, _ := storedCart(t, store)
		assert.Equal(t, e.Cart(), persisted)
	})

	t.Run("Unknown product propagates not found", func(t *testing.T) {
		e, _ := guestEngine(t)
		assert.ErrorIs(t, e.AddItem(ctx, "nope", 1, nil), apperror.ErrNotFound)
	})

	t.Run("Zero quantity fails before any lookup", func(t *testing.T) {
		e, _ := guestEngine(t)
		assert.ErrorIs(t, e.AddItem(ctx, "p1", 0, nil), apperror.ErrValidation)
	})

	t.Run("Persist failure leaves cart unchanged", func(t *testing.T) {
		store := failingStore{Memory: localstore.NewMemory(), setErr: errors.New("disk full")}
		e := NewEngine(&mockRemote{}, catalog, store)
		require.NoError(t, e.Initialize(ctx, AuthUnauthenticated))

		err := e.AddItem(ctx, "p1", 1, nil)
		assert.ErrorIs(t, err, apperror.ErrTransport)
		assert.True(t, e.Cart().IsEmpty())
	})
}

func TestEngine_GuestRemoveUpdateClear(t *testing.T) {
	ctx := context.Background()
	e, store := guestEngine(t)

	red := &Variation{VariantID: "red"}
	require.NoError(t, e.AddItem(ctx, "p1", 1, red))
	require.NoError(t, e.AddItem(ctx, "p1", 2, nil))
	require.NoError(t, e.AddItem(ctx, "p2", 1, nil))

	require.NoError(t, e.UpdateQuantity(ctx, ItemRef{ProductID: "p1", Variation: red}, 7))
	assert.Equal(t, 7, e.Cart().Items[0].Quantity)
	assert.Equal(t, 2, e.Cart().Items[1].Quantity)

	assert.ErrorIs(t, e.UpdateQuantity(ctx, ItemRef{ProductID: "p1"}, 0), apperror.ErrValidation)

	lineID := e.Cart().Items[2].ID
	require.NoError(t, e.RemoveItem(ctx, ItemRef{ItemID: lineID}))
	require.Len(t, e.Cart().Items, 2)

	require.NoError(t, e.RemoveItem(ctx, ItemRef{ProductID: "p1"}))
	require.Len(t, e.Cart().Items, 1)
	assert.Equal(t, "red", e.Cart().Items[0].Variation.VariantID)

	persisted, _ := storedCart(t, store)
	assert.Equal(t, e.Cart(), persisted)

	require.NoError(t, e.Clear(ctx))
	assert.True(t, e.Cart().IsEmpty())
	persisted, ok := storedCart(t, store)
	assert.True(t, ok)
	assert.True(t, persisted.IsEmpty())
}

func TestEngine_AuthenticatedInitialize(t *testing.T) {
	ctx := context.Background()
	guest := Cart{Items: []Item{
		{ID: "g1", Product: catalog["p1"], Quantity: 1},
		{ID: "g2", Product: catalog["p2"], Quantity: 2},
	}}
	raw, _ := json.Marshal(guest)

	t.Run("Guest cart is merged once and local copy removed", func(t *testing.T) {
		store := localstore.NewMemory()
		require.NoError(t, store.Set(ctx, DefaultStorageKey, string(raw)))

		merged := Cart{Items: []Item{
			{ID: "s1", Product: catalog["p1"], Quantity: 1},
			{ID: "s2", Product: catalog["p2"], Quantity: 2},
		}}
		remote := &mockRemote{}
		remote.On("GetCart", ctx).Return(Empty(), nil).Once()
		remote.On("Sync", ctx, guest).Return(merged, nil).Once()

		e := NewEngine(remote, catalog, store)
		require.NoError(t, e.Initialize(ctx, AuthAuthenticated))

		assert.Equal(t, merged, e.Cart())
		_, ok := storedCart(t, store)
		assert.False(t, ok, "local cart must be deleted after merge")

		// Nothing left to merge on the next transition.
		remote.On("GetCart", ctx).Return(merged, nil).Once()
		require.NoError(t, e.Initialize(ctx, AuthAuthenticated))
		remote.AssertNumberOfCalls(t, "Sync", 1)
		remote.AssertExpectations(t)
	})

	t.Run("Empty local cart skips sync", func(t *testing.T) {
		remote := &mockRemote{}
		remote.On("GetCart", ctx).Return(Cart{Items: []Item{{ID: "s1", Product: catalog["p1"], Quantity: 3}}}, nil)

		e := NewEngine(remote, catalog, localstore.NewMemory())
		require.NoError(t, e.Initialize(ctx, AuthAuthenticated))

		assert.Equal(t, 3, e.ItemCount())
		remote.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
	})

	t.Run("Remote fetch failure falls back to local cart", func(t *testing.T) {
		store := localstore.NewMemory()
		require.NoError(t, store.Set(ctx, DefaultStorageKey, string(raw)))

		remote := &mockRemote{}
		remote.On("GetCart", ctx).Return(Cart{}, apperror.Transport(errors.New("timeout"), "get cart"))

		e := NewEngine(remote, catalog, store)
		require.NoError(t, e.Initialize(ctx, AuthAuthenticated))

		assert.Equal(t, StateReady, e.State())
		assert.Equal(t, guest, e.Cart())
		remote.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
	})

	t.Run("Failed sync keeps local copy for retry", func(t *testing.T) {
		store := localstore.NewMemory()
		require.NoError(t, store.Set(ctx, DefaultStorageKey, string(raw)))

		remote := &mockRemote{}
		remote.On("GetCart", ctx).Return(Empty(), nil)
		remote.On("Sync", ctx, guest).Return(Cart{}, errors.New("503"))

		e := NewEngine(remote, catalog, store)
		require.NoError(t, e.Initialize(ctx, AuthAuthenticated))

		assert.True(t, e.Cart().IsEmpty())
		_, ok := storedCart(t, store)
		assert.True(t, ok)
	})
}

func TestEngine_AuthenticatedMutations(t *testing.T) {
	ctx := context.Background()
	line := Item{ID: "s1", Product: catalog["p1"], Quantity: 1}
	one := Cart{Items: []Item{line}}

	remote := &mockRemote{}
	remote.On("GetCart", ctx).Return(Empty(), nil)
	store := localstore.NewMemory()
	e := NewEngine(remote, catalog, store)
	require.NoError(t, e.Initialize(ctx, AuthAuthenticated))

	remote.On("AddItem", ctx, "p1", 1, (*Variation)(nil)).Return(one, nil).Once()
	require.NoError(t, e.AddItem(ctx, "p1", 1, nil))
	assert.Equal(t, one, e.Cart())

	updated := Cart{Items: []Item{{ID: "s1", Product: catalog["p1"], Quantity: 4}}}
	remote.On("UpdateItem", ctx, "s1", 4).Return(updated, nil).Once()
	require.NoError(t, e.UpdateQuantity(ctx, ItemRef{ProductID: "p1"}, 4))
	assert.Equal(t, 4, e.ItemCount())

	remote.On("AddItem", ctx, "p2", 9, (*Variation)(nil)).
		Return(Cart{}, apperror.InsufficientStock("only 3 left")).Once()
	err := e.AddItem(ctx, "p2", 9, nil)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assert.Equal(t, updated, e.Cart(), "failed remote call keeps cached cart")

	remote.On("RemoveItem", ctx, "s1").Return(Empty(), nil).Once()
	require.NoError(t, e.RemoveItem(ctx, ItemRef{ItemID: "s1"}))
	assert.True(t, e.Cart().IsEmpty())

	assert.ErrorIs(t, e.RemoveItem(ctx, ItemRef{ProductID: "p9"}), apperror.ErrNotFound)

	remote.On("Clear", ctx).Return(Empty(), nil).Once()
	require.NoError(t, e.Clear(ctx))

	_, ok := storedCart(t, store)
	assert.False(t, ok, "authenticated mutations never touch local storage")
	remote.AssertExpectations(t)
}

func TestEngine_MutationAfterFallbackRefetches(t *testing.T) {
	ctx := context.Background()
	guest := Cart{Items: []Item{{ID: "g1", Product: catalog["p1"], Quantity: 1}}}
	raw, _ := json.Marshal(guest)

	t.Run("Remote cart is fetched and merged before the update", func(t *testing.T) {
		store := localstore.NewMemory()
		require.NoError(t, store.Set(ctx, DefaultStorageKey, string(raw)))

		merged := Cart{Items: []Item{{ID: "s1", Product: catalog["p1"], Quantity: 1}}}
		remote := &mockRemote{}
		remote.On("GetCart", ctx).Return(Cart{}, apperror.Transport(errors.New("timeout"), "get cart")).Once()
		remote.On("GetCart", ctx).Return(Empty(), nil).Once()
		remote.On("Sync", ctx, guest).Return(merged, nil).Once()
		remote.On("UpdateItem", ctx, "s1", 4).
			Return(Cart{Items: []Item{{ID: "s1", Product: catalog["p1"], Quantity: 4}}}, nil).Once()

		e := NewEngine(remote, catalog, store)
		require.NoError(t, e.Initialize(ctx, AuthAuthenticated))
		assert.Equal(t, "g1", e.Cart().Items[0].ID)

		require.NoError(t, e.UpdateQuantity(ctx, ItemRef{ProductID: "p1"}, 4))
		assert.Equal(t, 4, e.ItemCount())
		_, ok := storedCart(t, store)
		assert.False(t, ok)
		remote.AssertExpectations(t)
	})

	t.Run("Refetch failure surfaces and keeps the cached cart", func(t *testing.T) {
		store := localstore.NewMemory()
		require.NoError(t, store.Set(ctx, DefaultStorageKey, string(raw)))

		remote := &mockRemote{}
		remote.On("GetCart", ctx).Return(Cart{}, apperror.Transport(errors.New("timeout"), "get cart"))

		e := NewEngine(remote, catalog, store)
		require.NoError(t, e.Initialize(ctx, AuthAuthenticated))

		err := e.RemoveItem(ctx, ItemRef{ProductID: "p1"})
		assert.ErrorIs(t, err, apperror.ErrTransport)
		assert.Equal(t, guest, e.Cart())
		remote.AssertNotCalled(t, "RemoveItem", mock.Anything, mock.Anything)
	})
}

func TestEngine_LogoutReturnsToGuestCart(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{}
	remote.On("GetCart", ctx).Return(Cart{Items: []Item{{ID: "s1", Product: catalog["p1"], Quantity: 2}}}, nil)

	e := NewEngine(remote, catalog, localstore.NewMemory())
	require.NoError(t, e.Initialize(ctx, AuthAuthenticated))
	assert.Equal(t, 2, e.ItemCount())

	require.NoError(t, e.Initialize(ctx, AuthUnauthenticated))
	assert.True(t, e.Cart().IsEmpty())
}
