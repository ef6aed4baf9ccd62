package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateProduct = "CREATE_PRODUCT"
	ActionUpdateProduct = "UPDATE_PRODUCT"
	ActionDeleteProduct = "DELETE_PRODUCT"
	ActionAdjustStock   = "ADJUST_STOCK"

	// Authorization actions
	ActionCreateRole       = "CREATE_ROLE"
	ActionUpdateRole       = "UPDATE_ROLE"
	ActionDeleteRole       = "DELETE_ROLE"
	ActionCreatePermission = "CREATE_PERMISSION"
	ActionUpdatePermission = "UPDATE_PERMISSION"
	ActionDeletePermission = "DELETE_PERMISSION"
	ActionAssignRole       = "ASSIGN_ROLE"
	ActionSetPermissions   = "SET_USER_PERMISSIONS"

	// Cart actions
	ActionMergeCart = "MERGE_GUEST_CART"
)

// KnownAction reports whether action is one the API records
func KnownAction(action string) bool {
	switch action {
	case ActionCreateProduct, ActionUpdateProduct, ActionDeleteProduct, ActionAdjustStock,
		ActionCreateRole, ActionUpdateRole, ActionDeleteRole,
		ActionCreatePermission, ActionUpdatePermission, ActionDeletePermission,
		ActionAssignRole, ActionSetPermissions, ActionMergeCart:
		return true
	}
	return false
}

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for seeding and other system writes
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
