package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification is a persisted in-app notification owned by its recipient.
// The record is the durable source of truth for delivery; the live push is
// best-effort on top of it.
type Notification struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	UserID        uuid.UUID
	Title         string
	Body          string
	Type          string
	ReferenceType *string
	ReferenceID   *uuid.UUID
	IsRead        bool
	ReadAt        *time.Time
	CreatedAt     time.Time
}

func (n *Notification) Validate() error {
	if n.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if n.UserID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(n.Type) == "" {
		return fmt.Errorf("%w: notification type is required", ErrValidation)
	}
	return nil
}
