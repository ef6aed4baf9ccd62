package cart

import "context"

// RemoteStore is the server-side cart of an authenticated user. Every call
// returns the cart as the server holds it after the call.
type RemoteStore interface {
	GetCart(ctx context.Context) (Cart, error)
	AddItem(ctx context.Context, productID string, quantity int, variation *Variation) (Cart, error)
	RemoveItem(ctx context.Context, itemID string) (Cart, error)
	UpdateItem(ctx context.Context, itemID string, quantity int) (Cart, error)
	Clear(ctx context.Context) (Cart, error)
	Sync(ctx context.Context, local Cart) (Cart, error)
}

// ProductLookup fetches the current product snapshot.
type ProductLookup interface {
	GetProductByID(ctx context.Context, id string) (Product, error)
}

// LocalStore is the durable key-value store holding the guest cart.
// Get reports ok=false when the key is absent.
type LocalStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
