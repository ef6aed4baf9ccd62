package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/cart"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/repository"
	ws "storefront/internal/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AddCartItemRequest struct {
	ProductID string          `json:"productId" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
	Variation *cart.Variation `json:"variation"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// CartService is the server side of the remote cart. Every call returns the
// cart as stored after the call.
type CartService interface {
	GetCart(ctx context.Context, userID string) (cart.Cart, error)
	AddItem(ctx context.Context, userID string, req AddCartItemRequest) (cart.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID string, quantity int) (cart.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (cart.Cart, error)
	Clear(ctx context.Context, userID string) (cart.Cart, error)
	Sync(ctx context.Context, userID string, local cart.Cart) (cart.Cart, error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	events      EventPublisher
	log         *zap.Logger
	metrics     *metrics.CartMetrics
}

func NewCartService(
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventPublisher,
	log *zap.Logger,
	m *metrics.CartMetrics,
) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		events:      events,
		log:         log,
		metrics:     m,
	}
}

// variationKey is the variation part of cart.Key, stored per line for the unique index
func variationKey(v *cart.Variation) string {
	return strings.TrimPrefix(cart.Key("", v), "|")
}

func toCartVariation(v *cart.Variation) *model.CartVariation {
	if v == nil || (v.VariantID == "" && len(v.Options) == 0) {
		return nil
	}
	return &model.CartVariation{VariantID: v.VariantID, Options: v.Options}
}

func toCart(c *model.Cart) cart.Cart {
	out := cart.Empty()
	for _, it := range c.Items {
		var v *cart.Variation
		if it.Variation != nil {
			v = &cart.Variation{VariantID: it.Variation.VariantID, Options: it.Variation.Options}
		}
		out.Items = append(out.Items, cart.Item{
			ID: it.ID.String(),
			Product: cart.Product{
				ID:        it.Product.ID.String(),
				Name:      it.Product.Name,
				Price:     it.Product.Price,
				SalePrice: it.Product.SalePrice,
				Images:    it.Product.Images,
				Stock:     it.Product.Stock,
			},
			Quantity:  it.Quantity,
			Variation: v,
		})
	}
	return out
}

func findLine(c *model.Cart, productID uuid.UUID, key string) *model.CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].VariationKey == key {
			return &c.Items[i]
		}
	}
	return nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (cart.Cart, error) {
	uid, err := parseID(userID, "user")
	if err != nil {
		return cart.Cart{}, err
	}
	c, err := s.cartRepo.FindOrCreateByUser(ctx, uid)
	if err != nil {
		return cart.Cart{}, fmt.Errorf("failed to load cart: %w", err)
	}
	return toCart(c), nil
}

// AddItem merges into an existing line of the same product and variation.
// The combined quantity may not exceed stock.
func (s *cartService) AddItem(ctx context.Context, userID string, req AddCartItemRequest) (cart.Cart, error) {
	uid, err := parseID(userID, "user")
	if err != nil {
		return cart.Cart{}, err
	}
	if req.Quantity <= 0 {
		return cart.Cart{}, apperror.Validation("quantity must be positive")
	}
	productID, err := parseID(req.ProductID, "product")
	if err != nil {
		return cart.Cart{}, err
	}

	key := variationKey(req.Variation)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.cartRepo.LockByUser(txCtx, uid)
		if err != nil {
			return fmt.Errorf("failed to lock cart: %w", err)
		}
		product, err := s.productRepo.FindByID(txCtx, productID)
		if err != nil {
			return lookupErr(err, "product")
		}

		line := findLine(c, productID, key)
		want := req.Quantity
		if line != nil {
			want += line.Quantity
		}
		if want > product.Stock {
			return apperror.InsufficientStock("only %d of %s left in stock", product.Stock, product.Name)
		}

		if line != nil {
			return s.cartRepo.UpdateItemQuantity(txCtx, line.ID, want)
		}
		return s.cartRepo.CreateItem(txCtx, &model.CartItem{
			CartID:       c.ID,
			ProductID:    productID,
			VariationKey: key,
			Variation:    toCartVariation(req.Variation),
			Quantity:     want,
		})
	})
	if err != nil {
		return cart.Cart{}, err
	}
	return s.afterMutation(ctx, uid, "add")
}

func (s *cartService) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (cart.Cart, error) {
	uid, err := parseID(userID, "user")
	if err != nil {
		return cart.Cart{}, err
	}
	lineID, err := parseID(itemID, "cart item")
	if err != nil {
		return cart.Cart{}, err
	}
	if quantity <= 0 {
		return cart.Cart{}, apperror.Validation("quantity must be at least 1")
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.cartRepo.LockByUser(txCtx, uid)
		if err != nil {
			return fmt.Errorf("failed to lock cart: %w", err)
		}
		var line *model.CartItem
		for i := range c.Items {
			if c.Items[i].ID == lineID {
				line = &c.Items[i]
				break
			}
		}
		if line == nil {
			return apperror.NotFound("cart item not found")
		}
		if quantity > line.Product.Stock {
			return apperror.InsufficientStock("only %d of %s left in stock", line.Product.Stock, line.Product.Name)
		}
		return s.cartRepo.UpdateItemQuantity(txCtx, line.ID, quantity)
	})
	if err != nil {
		return cart.Cart{}, err
	}
	return s.afterMutation(ctx, uid, "update")
}

func (s *cartService) RemoveItem(ctx context.Context, userID, itemID string) (cart.Cart, error) {
	uid, err := parseID(userID, "user")
	if err != nil {
		return cart.Cart{}, err
	}
	lineID, err := parseID(itemID, "cart item")
	if err != nil {
		return cart.Cart{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.cartRepo.LockByUser(txCtx, uid)
		if err != nil {
			return fmt.Errorf("failed to lock cart: %w", err)
		}
		n, err := s.cartRepo.DeleteItem(txCtx, c.ID, lineID)
		if err != nil {
			return fmt.Errorf("failed to remove cart item: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("cart item not found")
		}
		return nil
	})
	if err != nil {
		return cart.Cart{}, err
	}
	return s.afterMutation(ctx, uid, "remove")
}

func (s *cartService) Clear(ctx context.Context, userID string) (cart.Cart, error) {
	uid, err := parseID(userID, "user")
	if err != nil {
		return cart.Cart{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.cartRepo.LockByUser(txCtx, uid)
		if err != nil {
			return fmt.Errorf("failed to lock cart: %w", err)
		}
		return s.cartRepo.DeleteAllItems(txCtx, c.ID)
	})
	if err != nil {
		return cart.Cart{}, err
	}
	return s.afterMutation(ctx, uid, "clear")
}

// Sync merges a guest cart into the user's cart. Lines with the same product
// and variation add up, clamped to stock. Unknown or sold out products are skipped.
func (s *cartService) Sync(ctx context.Context, userID string, local cart.Cart) (cart.Cart, error) {
	uid, err := parseID(userID, "user")
	if err != nil {
		return cart.Cart{}, err
	}

	ids := make([]uuid.UUID, 0, len(local.Items))
	for _, it := range local.Items {
		if pid, err := uuid.Parse(it.Product.ID); err == nil {
			ids = append(ids, pid)
		}
	}

	var merged, skipped int
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.cartRepo.LockByUser(txCtx, uid)
		if err != nil {
			return fmt.Errorf("failed to lock cart: %w", err)
		}
		products, err := s.productRepo.FindByIDs(txCtx, ids)
		if err != nil {
			return fmt.Errorf("failed to load products: %w", err)
		}
		byID := make(map[uuid.UUID]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		for _, it := range local.Items {
			pid, err := uuid.Parse(it.Product.ID)
			product, ok := byID[pid]
			if err != nil || !ok || product.Stock <= 0 || it.Quantity <= 0 {
				skipped++
				continue
			}

			key := variationKey(it.Variation)
			if line := findLine(c, pid, key); line != nil {
				qty := min(line.Quantity+it.Quantity, product.Stock)
				if err := s.cartRepo.UpdateItemQuantity(txCtx, line.ID, qty); err != nil {
					return fmt.Errorf("failed to merge cart item: %w", err)
				}
				line.Quantity = qty
			} else {
				item := model.CartItem{
					CartID:       c.ID,
					ProductID:    pid,
					VariationKey: key,
					Variation:    toCartVariation(it.Variation),
					Quantity:     min(it.Quantity, product.Stock),
				}
				if err := s.cartRepo.CreateItem(txCtx, &item); err != nil {
					return fmt.Errorf("failed to merge cart item: %w", err)
				}
				c.Items = append(c.Items, item)
			}
			merged++
		}

		return writeAudit(txCtx, s.auditRepo, userID, model.ActionMergeCart, c.ID.String(), "",
			map[string]int{"merged": merged, "skipped": skipped})
	})
	if err != nil {
		return cart.Cart{}, err
	}

	s.log.Info("guest cart merged",
		zap.String("user_id", userID),
		zap.Int("merged", merged),
		zap.Int("skipped", skipped))
	return s.afterMutation(ctx, uid, "sync")
}

// afterMutation reloads the cart, counts the mutation and notifies the user's other sessions
func (s *cartService) afterMutation(ctx context.Context, uid uuid.UUID, op string) (cart.Cart, error) {
	c, err := s.cartRepo.FindOrCreateByUser(ctx, uid)
	if err != nil {
		return cart.Cart{}, fmt.Errorf("failed to load cart: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ServerMutationsTotal.WithLabelValues(op).Inc()
	}
	out := toCart(c)
	s.events.PublishToUser(uid.String(), ws.EventCartUpdated, out)
	return out, nil
}
