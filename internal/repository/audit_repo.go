package repository

import (
	"context"

	"storefront/internal/model"

	"gorm.io/gorm"
)

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	// List returns newest first; an empty action matches every entry
	List(ctx context.Context, page, limit int, action string) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, page, limit int, action string) ([]model.AuditLog, int64, error) {
	logs := []model.AuditLog{}
	q := GetDB(ctx, r.db).Model(&model.AuditLog{}).Preload("User")
	if action != "" {
		q = q.Where("action = ?", action)
	}
	total, err := listPage(q, page, limit, "created_at desc", &logs)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
