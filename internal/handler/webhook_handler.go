package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/domain"
	"github.com/rmupfumira/classup/internal/service"
)

const defaultDeliveryListLimit = 50

type WebhookService interface {
	CreateEndpoint(ctx context.Context, principal auth.Principal, url string, events []string) (*domain.WebhookEndpoint, error)
	UpdateEndpoint(ctx context.Context, principal auth.Principal, endpointID uuid.UUID, update service.EndpointUpdate) (*domain.WebhookEndpoint, error)
	DeleteEndpoint(ctx context.Context, principal auth.Principal, endpointID uuid.UUID) error
	GetEndpoint(ctx context.Context, principal auth.Principal, endpointID uuid.UUID) (*domain.WebhookEndpoint, error)
	ListEndpoints(ctx context.Context, principal auth.Principal) ([]domain.WebhookEndpoint, error)
	ListDeliveries(ctx context.Context, principal auth.Principal, endpointID uuid.UUID, limit int) ([]domain.WebhookDelivery, error)
	TestEndpoint(ctx context.Context, principal auth.Principal, endpointID uuid.UUID, eventType string) (*service.TestResult, error)
	RetryDelivery(ctx context.Context, principal auth.Principal, deliveryID uuid.UUID) error
}

type WebhookHandler struct {
	service WebhookService
}

func NewWebhookHandler(service WebhookService) (*WebhookHandler, error) {
	if service == nil {
		return nil, errors.New("webhook service is required")
	}
	return &WebhookHandler{service: service}, nil
}

func RegisterWebhookRoutes(router fiber.Router, service WebhookService) error {
	h, err := NewWebhookHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/webhooks", h.CreateEndpoint)
	v1.Get("/webhooks", h.ListEndpoints)
	v1.Get("/webhooks/:id", h.GetEndpoint)
	v1.Patch("/webhooks/:id", h.UpdateEndpoint)
	v1.Delete("/webhooks/:id", h.DeleteEndpoint)
	v1.Post("/webhooks/:id/test", h.TestEndpoint)
	v1.Get("/webhooks/:id/deliveries", h.ListDeliveries)
	v1.Post("/webhooks/deliveries/:deliveryId/retry", h.RetryDelivery)

	return nil
}

type createEndpointRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type updateEndpointRequest struct {
	URL      *string  `json:"url"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"isActive"`
}

type testEndpointRequest struct {
	EventType string `json:"eventType"`
}

// endpointResponse never carries the signing secret. createEndpointResponse
// exposes it exactly once, at creation.
type endpointResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type createEndpointResponse struct {
	endpointResponse
	Secret string `json:"secret"`
}

type deliveryResponse struct {
	ID            string     `json:"id"`
	EventType     string     `json:"eventType"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	ResponseCode  *int       `json:"responseCode,omitempty"`
	ResponseBody  *string    `json:"responseBody,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (h *WebhookHandler) CreateEndpoint(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	var req createEndpointRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	endpoint, err := h.service.CreateEndpoint(c.UserContext(), principal, req.URL, req.Events)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(createEndpointResponse{
		endpointResponse: toEndpointResponse(endpoint),
		Secret:           endpoint.Secret,
	})
}

func (h *WebhookHandler) ListEndpoints(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	endpoints, err := h.service.ListEndpoints(c.UserContext(), principal)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]endpointResponse, 0, len(endpoints))
	for i := range endpoints {
		data = append(data, toEndpointResponse(&endpoints[i]))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *WebhookHandler) GetEndpoint(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	endpoint, err := h.service.GetEndpoint(c.UserContext(), principal, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toEndpointResponse(endpoint))
}

func (h *WebhookHandler) UpdateEndpoint(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req updateEndpointRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	endpoint, err := h.service.UpdateEndpoint(c.UserContext(), principal, id, service.EndpointUpdate{
		URL:      req.URL,
		Events:   req.Events,
		IsActive: req.IsActive,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toEndpointResponse(endpoint))
}

func (h *WebhookHandler) DeleteEndpoint(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.service.DeleteEndpoint(c.UserContext(), principal, id); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) TestEndpoint(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req testEndpointRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	result, err := h.service.TestEndpoint(c.UserContext(), principal, id, req.EventType)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *WebhookHandler) ListDeliveries(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	deliveries, err := h.service.ListDeliveries(c.UserContext(), principal, id, c.QueryInt("limit", defaultDeliveryListLimit))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		data = append(data, toDeliveryResponse(&deliveries[i]))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *WebhookHandler) RetryDelivery(c *fiber.Ctx) error {
	principal, err := requestPrincipal(c)
	if err != nil {
		return err
	}

	id, err := paramUUID(c, "deliveryId")
	if err != nil {
		return err
	}

	if err := h.service.RetryDelivery(c.UserContext(), principal, id); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func toEndpointResponse(e *domain.WebhookEndpoint) endpointResponse {
	return endpointResponse{
		ID:        e.ID.String(),
		URL:       e.URL,
		Events:    e.Events,
		IsActive:  e.IsActive,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func toDeliveryResponse(d *domain.WebhookDelivery) deliveryResponse {
	return deliveryResponse{
		ID:            d.ID.String(),
		EventType:     d.EventType,
		Status:        d.Status.String(),
		Attempts:      d.Attempts,
		LastAttemptAt: d.LastAttemptAt,
		NextAttemptAt: d.NextAttemptAt,
		ResponseCode:  d.ResponseCode,
		ResponseBody:  d.ResponseBody,
		CreatedAt:     d.CreatedAt,
	}
}
