package repository

import (
	"context"

	"storefront/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartRepository interface {
	// FindOrCreateByUser returns the user's cart with items and products preloaded
	FindOrCreateByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// LockByUser takes a row lock on the user's cart for the rest of the transaction
	LockByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	CreateItem(ctx context.Context, item *model.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (int64, error)
	DeleteAllItems(ctx context.Context, cartID uuid.UUID) error
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) FindOrCreateByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	db := GetDB(ctx, r.db)
	cart := model.Cart{UserID: userID}
	if err := db.Where("user_id = ?", userID).FirstOrCreate(&cart).Error; err != nil {
		return nil, err
	}

	if err := db.Preload("Product").Where("cart_id = ?", cart.ID).Order("created_at asc").Find(&cart.Items).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) LockByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	if _, err := r.FindOrCreateByUser(ctx, userID); err != nil {
		return nil, err
	}

	var cart model.Cart
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, err
	}
	if err := GetDB(ctx, r.db).Preload("Product").Where("cart_id = ?", cart.ID).Order("created_at asc").Find(&cart.Items).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) CreateItem(ctx context.Context, item *model.CartItem) error {
	return GetDB(ctx, r.db).Omit("Product").Create(item).Error
}

func (r *cartRepository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return GetDB(ctx, r.db).Model(&model.CartItem{}).Where("id = ?", itemID).Update("quantity", quantity).Error
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Where("cart_id = ? AND id = ?", cartID, itemID).Delete(&model.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *cartRepository) DeleteAllItems(ctx context.Context, cartID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error
}
