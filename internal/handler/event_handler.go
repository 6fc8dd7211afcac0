package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/domain"
)

type EventDispatcher interface {
	Publish(ctx context.Context, principal auth.Principal, event domain.Event) error
}

type EventHandler struct {
	dispatcher EventDispatcher
}

func NewEventHandler(dispatcher EventDispatcher) (*EventHandler, error) {
	if dispatcher == nil {
		return nil, errors.New("event dispatcher is required")
	}
	return &EventHandler{dispatcher: dispatcher}, nil
}

func RegisterEventRoutes(router fiber.Router, dispatcher EventDispatcher) error {
	h, err := NewEventHandler(dispatcher)
	if err != nil {
		return err
	}

	router.Group("/v1").Post("/events", h.PublishEvent)
	return nil
}

type publishEventRequest struct {
	Type      string         `json:"type"`
	ScopeKind string         `json:"scopeKind"`
	ScopeID   *string        `json:"scopeId"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Payload   map[string]any `json:"payload"`
	Reference *referenceBody `json:"reference"`
}

type referenceBody struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (h *EventHandler) PublishEvent(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	var req publishEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	event, err := requestToDomainEvent(req, principal.TenantID)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.dispatcher.Publish(c.UserContext(), principal, event); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func requestToDomainEvent(req publishEventRequest, tenantID uuid.UUID) (domain.Event, error) {
	kind, err := domain.ParseScopeKindFromString(req.ScopeKind)
	if err != nil {
		return domain.Event{}, err
	}

	scope := domain.Scope{Kind: kind}
	if req.ScopeID != nil {
		id, err := uuid.Parse(*req.ScopeID)
		if err != nil {
			return domain.Event{}, fmt.Errorf("%w: invalid scope id", domain.ErrValidation)
		}
		scope.ScopeID = id
	}

	event := domain.Event{
		TenantID:   tenantID,
		Type:       req.Type,
		Scope:      scope,
		Title:      req.Title,
		Body:       req.Body,
		Payload:    req.Payload,
		OccurredAt: time.Now().UTC(),
	}
	if req.Reference != nil {
		refID, err := uuid.Parse(req.Reference.ID)
		if err != nil {
			return domain.Event{}, fmt.Errorf("%w: invalid reference id", domain.ErrValidation)
		}
		event.Reference = &domain.Reference{Type: req.Reference.Type, ID: refID}
	}

	return event, event.Validate()
}
