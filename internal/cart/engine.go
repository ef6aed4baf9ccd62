package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/apperror"
	"storefront/internal/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultStorageKey is the local store key holding the guest cart.
const DefaultStorageKey = "cart"

// ErrNotReady is returned by cart operations before Initialize has resolved.
var ErrNotReady = errors.New("cart is not ready")

// AuthState is the authentication status of the session owning the cart.
type AuthState int

const (
	AuthPending AuthState = iota
	AuthUnauthenticated
	AuthAuthenticated
)

func (a AuthState) String() string {
	switch a {
	case AuthUnauthenticated:
		return "unauthenticated"
	case AuthAuthenticated:
		return "authenticated"
	default:
		return "pending"
	}
}

// State is the lifecycle state of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// ItemRef selects a cart line either by line id or by (product, variation).
type ItemRef struct {
	ItemID    string
	ProductID string
	Variation *Variation
}

func (r ItemRef) matches(it Item) bool {
	if r.ItemID != "" && it.ID == r.ItemID {
		return true
	}
	return r.ProductID != "" && it.Key() == Key(r.ProductID, r.Variation)
}

// Engine presents one cart regardless of authentication state. Guest carts
// live in the LocalStore; authenticated carts live in the RemoteStore with the
// engine holding a cached copy. Mutations on one Engine are serialized.
type Engine struct {
	mu sync.Mutex

	remote   RemoteStore
	products ProductLookup
	local    LocalStore
	key      string
	logger   *zap.Logger
	metrics  *metrics.CartMetrics

	state State
	auth  AuthState
	cart  Cart
	// stale is set when an authenticated Initialize fell back to the local
	// cart; the cached lines then carry guest ids the server does not know.
	stale bool
}

// Option configures an Engine.
type Option func(*Engine)

func WithStorageKey(key string) Option {
	return func(e *Engine) { e.key = key }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.CartMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires an Engine to its collaborators. It starts Uninitialized.
func NewEngine(remote RemoteStore, products ProductLookup, local LocalStore, opts ...Option) *Engine {
	e := &Engine{
		remote:   remote,
		products: products,
		local:    local,
		key:      DefaultStorageKey,
		logger:   zap.NewNop(),
		cart:     Empty(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Cart returns a copy of the current cart.
func (e *Engine) Cart() Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Clone()
}

func (e *Engine) Total() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Total()
}

func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.ItemCount()
}

// Initialize loads the cart for the given authentication state. A pending
// state leaves the engine untouched. Switching between unauthenticated and
// authenticated re-enters Loading because the source of truth changes.
func (e *Engine) Initialize(ctx context.Context, auth AuthState) error {
	if auth == AuthPending {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = StateLoading
	e.auth = auth
	e.stale = false

	if auth == AuthUnauthenticated {
		e.cart = e.readLocal(ctx)
		e.state = StateReady
		return nil
	}

	remoteCart, err := e.remote.GetCart(ctx)
	if err != nil {
		e.logger.Warn("remote cart fetch failed, using local cart", zap.Error(err))
		if e.metrics != nil {
			e.metrics.RemoteFallbacksTotal.Inc()
		}
		e.cart = e.readLocal(ctx)
		e.stale = true
		e.state = StateReady
		return nil
	}
	e.cart = normalize(remoteCart)

	if local := e.readLocal(ctx); !local.IsEmpty() {
		e.mergeLocalIntoRemote(ctx, local)
	}

	e.state = StateReady
	return nil
}

// mergeLocalIntoRemote hands the whole guest cart to the remote sync call and
// drops the local copy once the server accepted it. A failed sync keeps the
// local copy so the next authenticated Initialize retries it.
func (e *Engine) mergeLocalIntoRemote(ctx context.Context, local Cart) {
	merged, err := e.remote.Sync(ctx, local)
	if err != nil {
		e.logger.Error("guest cart merge failed", zap.Int("items", len(local.Items)), zap.Error(err))
		e.countMerge("failed")
		return
	}
	e.cart = normalize(merged)

	if err := e.local.Remove(ctx, e.key); err != nil {
		e.logger.Error("failed to clear local cart after merge", zap.Error(err))
	}
	e.logger.Info("guest cart merged", zap.Int("items", len(local.Items)))
	e.countMerge("merged")
}

// AddItem adds quantity of a product. Guest carts validate stock against the
// fresh product snapshot and bump an existing line with the same key.
func (e *Engine) AddItem(ctx context.Context, productID string, quantity int, variation *Variation) error {
	if quantity < 1 {
		return apperror.Validation("quantity must be at least 1")
	}
	if productID == "" {
		return apperror.Validation("product id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return ErrNotReady
	}

	if e.auth == AuthAuthenticated {
		if err := e.refreshStale(ctx); err != nil {
			return err
		}
		c, err := e.remote.AddItem(ctx, productID, quantity, variation)
		if err != nil {
			return err
		}
		e.cart = normalize(c)
		return nil
	}

	product, err := e.products.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if product.Stock < quantity {
		return apperror.InsufficientStock("only %d of %q in stock", product.Stock, product.Name)
	}

	next := e.cart.Clone()
	key := Key(productID, variation)
	found := false
	for i := range next.Items {
		// The stock check above only covers the incoming quantity, not the
		// combined line total.
		if next.Items[i].Key() == key {
			next.Items[i].Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		next.Items = append(next.Items, Item{
			ID:        uuid.NewString(),
			Product:   product.clone(),
			Quantity:  quantity,
			Variation: variation.Clone(),
		})
	}
	return e.commitGuest(ctx, "add", next)
}

// RemoveItem drops the lines matching ref.
func (e *Engine) RemoveItem(ctx context.Context, ref ItemRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return ErrNotReady
	}

	if e.auth == AuthAuthenticated {
		if err := e.refreshStale(ctx); err != nil {
			return err
		}
		itemID, err := e.resolveItemID(ref)
		if err != nil {
			return err
		}
		c, err := e.remote.RemoveItem(ctx, itemID)
		if err != nil {
			return err
		}
		e.cart = normalize(c)
		return nil
	}

	next := Cart{Items: make([]Item, 0, len(e.cart.Items))}
	for _, it := range e.cart.Items {
		if !ref.matches(it) {
			next.Items = append(next.Items, it)
		}
	}
	return e.commitGuest(ctx, "remove", next)
}

// UpdateQuantity sets the quantity of the lines matching ref. Stock is not
// re-validated on the guest path.
func (e *Engine) UpdateQuantity(ctx context.Context, ref ItemRef, quantity int) error {
	if quantity < 1 {
		return apperror.Validation("quantity must be at least 1")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return ErrNotReady
	}

	if e.auth == AuthAuthenticated {
		if err := e.refreshStale(ctx); err != nil {
			return err
		}
		itemID, err := e.resolveItemID(ref)
		if err != nil {
			return err
		}
		c, err := e.remote.UpdateItem(ctx, itemID, quantity)
		if err != nil {
			return err
		}
		e.cart = normalize(c)
		return nil
	}

	next := e.cart.Clone()
	for i := range next.Items {
		if ref.matches(next.Items[i]) {
			next.Items[i].Quantity = quantity
		}
	}
	return e.commitGuest(ctx, "update", next)
}

// Clear empties the cart.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return ErrNotReady
	}

	if e.auth == AuthAuthenticated {
		if err := e.refreshStale(ctx); err != nil {
			return err
		}
		if _, err := e.remote.Clear(ctx); err != nil {
			return err
		}
		e.cart = Empty()
		return nil
	}
	return e.commitGuest(ctx, "clear", Empty())
}

// refreshStale retries the remote fetch, and the pending merge, before the
// first remote mutation after a fallback. The cached cart is kept on failure.
func (e *Engine) refreshStale(ctx context.Context) error {
	if !e.stale {
		return nil
	}
	remoteCart, err := e.remote.GetCart(ctx)
	if err != nil {
		return err
	}
	e.cart = normalize(remoteCart)
	e.stale = false

	if local := e.readLocal(ctx); !local.IsEmpty() {
		e.mergeLocalIntoRemote(ctx, local)
	}
	return nil
}

// commitGuest persists next and only then makes it the current cart.
func (e *Engine) commitGuest(ctx context.Context, op string, next Cart) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := e.local.Set(ctx, e.key, string(payload)); err != nil {
		return apperror.Transport(err, "persist guest cart")
	}
	e.cart = next
	if e.metrics != nil {
		e.metrics.GuestMutationsTotal.WithLabelValues(op).Inc()
	}
	return nil
}

// readLocal treats a missing, unreadable or corrupt entry as an empty cart.
func (e *Engine) readLocal(ctx context.Context) Cart {
	raw, ok, err := e.local.Get(ctx, e.key)
	if err != nil {
		e.logger.Warn("failed to read local cart", zap.Error(err))
		return Empty()
	}
	if !ok || raw == "" {
		return Empty()
	}

	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		e.logger.Warn("discarding corrupt local cart", zap.Error(err))
		return Empty()
	}
	return normalize(c)
}

func (e *Engine) resolveItemID(ref ItemRef) (string, error) {
	if ref.ItemID != "" {
		return ref.ItemID, nil
	}
	for _, it := range e.cart.Items {
		if ref.matches(it) {
			return it.ID, nil
		}
	}
	return "", apperror.NotFound("cart item for product %q not found", ref.ProductID)
}

func (e *Engine) countMerge(status string) {
	if e.metrics != nil {
		e.metrics.MergesTotal.WithLabelValues(status).Inc()
	}
}

func normalize(c Cart) Cart {
	if c.Items == nil {
		c.Items = []Item{}
	}
	return c
}
