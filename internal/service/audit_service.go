package service

import (
	"context"
	"encoding/json"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/repository"
)

type AuditLogResponse struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Username   string          `json:"username"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, page, limit int, action string) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns newest entries first, optionally filtered by action
func (s *auditService) GetAuditLogs(ctx context.Context, page, limit int, action string) ([]AuditLogResponse, int64, error) {
	action = strings.ToUpper(strings.TrimSpace(action))
	if action != "" && !model.KnownAction(action) {
		return nil, 0, apperror.Validation("unknown audit action %q", action)
	}

	logs, total, err := s.repo.List(ctx, page, limit, action)
	if err != nil {
		return nil, 0, lookupErr(err, "audit log")
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		entry := AuditLogResponse{
			ID:         l.ID.String(),
			Username:   "System",
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    detailsJSON(l.Details),
			CreatedAt:  l.CreatedAt.Format(timeLayout),
		}
		if l.UserID != nil {
			entry.UserID = l.UserID.String()
		}
		if l.User != nil {
			entry.Username = l.User.Username
		}
		res = append(res, entry)
	}

	return res, total, nil
}

// detailsJSON passes stored JSON through and quotes anything else as a string
func detailsJSON(details string) json.RawMessage {
	if details == "" {
		return nil
	}
	if json.Valid([]byte(details)) {
		return json.RawMessage(details)
	}
	quoted, _ := json.Marshal(details)
	return quoted
}
