package model

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the server-side cart of an authenticated user. One cart per user.
type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartVariation is the chosen variant of a product
type CartVariation struct {
	VariantID string            `json:"variantId,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
}

// CartItem is one line of a Cart. VariationKey is the serialized variation
// so (cart, product, variation) stays unique.
type CartItem struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CartID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_cart_line" json:"cart_id"`
	ProductID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_cart_line" json:"product_id"`
	Product      Product        `gorm:"foreignKey:ProductID" json:"product"`
	VariationKey string         `gorm:"type:text;not null;default:'null';uniqueIndex:idx_cart_line" json:"-"`
	Variation    *CartVariation `gorm:"type:jsonb;serializer:json" json:"variation"`
	Quantity     int            `gorm:"type:int;not null" json:"quantity"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
