package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is a named, prioritized bundle of permissions assignable to a user
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"` // e.g. "STORE_MANAGER", immutable
	DisplayName string       `gorm:"type:varchar(255);not null" json:"display_name"`
	Description string       `gorm:"type:text" json:"description"`
	Color       string       `gorm:"type:varchar(20)" json:"color"`
	Priority    int          `gorm:"default:0;index" json:"priority"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"` // Prevent deletion of seeded roles
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// PermissionNames flattens the preloaded permissions
func (r Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// Permission is a single capability that can be assigned to roles
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"` // e.g. "view_products"
	DisplayName string    `gorm:"type:varchar(255);not null" json:"display_name"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"type:varchar(50);not null;index" json:"category"` // "products", "orders", "users"...
	IsSystem    bool      `gorm:"default:false" json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
