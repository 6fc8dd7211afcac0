package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/domain"
	"github.com/rmupfumira/classup/internal/repository"
	"github.com/rmupfumira/classup/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type NotificationService interface {
	List(ctx context.Context, principal auth.Principal, params repository.ListNotificationsParams) (*service.NotificationPage, error)
	UnreadCount(ctx context.Context, principal auth.Principal) (int64, error)
	MarkRead(ctx context.Context, principal auth.Principal, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, principal auth.Principal) (int64, error)
	Delete(ctx context.Context, principal auth.Principal, notificationID uuid.UUID) error
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/unread-count", h.UnreadCount)
	v1.Post("/notifications/read-all", h.MarkAllRead)
	v1.Post("/notifications/:id/read", h.MarkRead)
	v1.Delete("/notifications/:id", h.DeleteNotification)

	return nil
}

type notificationResponse struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Type          string     `json:"notificationType"`
	ReferenceType *string    `json:"referenceType,omitempty"`
	ReferenceID   *string    `json:"referenceId,omitempty"`
	IsRead        bool       `json:"isRead"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	params := repository.ListNotificationsParams{
		UnreadOnly: c.QueryBool("unreadOnly"),
		Page:       c.QueryInt("page", 1),
		PageSize:   c.QueryInt("pageSize", defaultPageSize),
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	page, err := h.service.List(c.UserContext(), principal, params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]notificationResponse, 0, len(page.Notifications))
	for i := range page.Notifications {
		data = append(data, toNotificationResponse(&page.Notifications[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: data,
		Meta: listMeta{Page: page.Page, PageSize: page.PageSize, Total: page.Total},
	})
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	count, err := h.service.UnreadCount(c.UserContext(), principal)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"unread": count})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.service.MarkRead(c.UserContext(), principal, id); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	count, err := h.service.MarkAllRead(c.UserContext(), principal)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"marked": count})
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.UserContext(), principal, id); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	resp := notificationResponse{
		ID:            n.ID.String(),
		Title:         n.Title,
		Body:          n.Body,
		Type:          n.Type,
		ReferenceType: n.ReferenceType,
		IsRead:        n.IsRead,
		ReadAt:        n.ReadAt,
		CreatedAt:     n.CreatedAt,
	}
	if n.ReferenceID != nil {
		s := n.ReferenceID.String()
		resp.ReferenceID = &s
	}
	return resp
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params(name)))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	default:
		return err
	}
}
