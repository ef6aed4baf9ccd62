package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventPublisher pushes realtime events to connected clients. *websocket.Hub satisfies it.
type EventPublisher interface {
	PublishToUser(userID, event string, data interface{})
	PublishAll(event string, data interface{})
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishToUser(string, string, interface{}) {}
func (NopPublisher) PublishAll(string, interface{})            {}

const timeLayout = "2006-01-02 15:04:05"

// writeAudit records who did what. Call it inside RunInTx so the row commits with the change.
func writeAudit(ctx context.Context, repo repository.AuditRepository, actorID, action, entityID, entityName string, details interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(actorID); err == nil {
		uid = &parsed
	}

	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// lookupErr maps a repository read error onto the API error kinds
func lookupErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("%s not found", what)
	}
	return fmt.Errorf("database error: %w", err)
}

func parseID(id, what string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid %s id", what)
	}
	return parsed, nil
}
