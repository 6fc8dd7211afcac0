package handler

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/observability"
	"github.com/rmupfumira/classup/internal/realtime"
)

type UnreadCountPusher interface {
	PushUnreadCounts(ctx context.Context, tenantID, userID uuid.UUID)
}

type RealtimeHandler struct {
	registry *realtime.Registry
	counts   UnreadCountPusher
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewRealtimeHandler(
	registry *realtime.Registry,
	counts UnreadCountPusher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*RealtimeHandler, error) {
	if registry == nil {
		return nil, errors.New("connection registry is required")
	}
	if counts == nil {
		return nil, errors.New("unread count pusher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RealtimeHandler{
		registry: registry,
		counts:   counts,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

func RegisterRealtimeRoutes(
	router fiber.Router,
	registry *realtime.Registry,
	counts UnreadCountPusher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) error {
	h, err := NewRealtimeHandler(registry, counts, metrics, logger)
	if err != nil {
		return err
	}

	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	router.Get("/ws", websocket.New(h.Serve))

	return nil
}

// Serve owns one client connection for its whole lifetime: register, push
// initial unread counts, then block reading until the peer goes away.
// Inbound payloads are ignored; the channel is push-only.
func (h *RealtimeHandler) Serve(conn *websocket.Conn) {
	principal, ok := conn.Locals(principalLocal).(auth.Principal)
	if !ok {
		h.logger.Warn("websocket connection without principal, closing")
		_ = conn.Close()
		return
	}

	connection := realtime.NewConnection(
		principal.TenantID,
		principal.UserID,
		principal.Role.String(),
		&wsTransport{conn: conn},
	)
	h.registry.Register(connection)
	h.metrics.IncConnections()

	defer func() {
		h.registry.Unregister(connection)
		h.metrics.DecConnections()
		_ = conn.Close()
	}()

	h.counts.PushUnreadCounts(context.Background(), principal.TenantID, principal.UserID)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsTransport adapts a websocket connection to the registry's transport.
// The registry's connection wrapper serializes writes; reads stay with
// Serve.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
