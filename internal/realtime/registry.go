package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport is one live client connection's write side. Implementations
// need not be safe for concurrent writes; the Connection wrapper serializes
// them, which is also what bounds the per-connection ordering guarantee.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// Connection is an ephemeral registered client connection. A user may hold
// several at once (multiple devices or tabs).
type Connection struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Role     string

	mu        sync.Mutex
	transport Transport
}

func NewConnection(tenantID, userID uuid.UUID, role string, transport Transport) *Connection {
	return &Connection{
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		transport: transport,
	}
}

func (c *Connection) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.WriteMessage(data)
}

// Registry tracks the live connections held by this process instance and
// fans pushes out across instances through the bus. The map is mutated only
// by Register/Unregister; pushes take read locks.
type Registry struct {
	bus    Bus
	logger *zap.Logger

	mu    sync.RWMutex
	conns map[string][]*Connection
}

func NewRegistry(bus Bus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		bus:    bus,
		logger: logger,
		conns:  make(map[string][]*Connection),
	}
}

func connKey(tenantID, userID uuid.UUID) string {
	return tenantID.String() + ":" + userID.String()
}

func (r *Registry) Register(conn *Connection) {
	key := connKey(conn.TenantID, conn.UserID)

	r.mu.Lock()
	r.conns[key] = append(r.conns[key], conn)
	r.mu.Unlock()

	r.logger.Info("connection registered",
		zap.String("tenantId", conn.TenantID.String()),
		zap.String("userId", conn.UserID.String()),
	)
}

func (r *Registry) Unregister(conn *Connection) {
	key := connKey(conn.TenantID, conn.UserID)

	r.mu.Lock()
	conns := r.conns[key]
	for i, c := range conns {
		if c == conn {
			r.conns[key] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(r.conns[key]) == 0 {
		delete(r.conns, key)
	}
	r.mu.Unlock()

	r.logger.Info("connection unregistered",
		zap.String("tenantId", conn.TenantID.String()),
		zap.String("userId", conn.UserID.String()),
	)
}

// ConnectionCount reports the number of live connections on this instance.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.conns {
		total += len(conns)
	}
	return total
}

// Start subscribes to the bus and delivers received frames to matching
// local connections. It blocks until ctx is canceled. With no bus
// configured it returns immediately and pushes stay local-only.
func (r *Registry) Start(ctx context.Context) error {
	if r.bus == nil {
		r.logger.Warn("no realtime bus configured, cross-instance push disabled")
		return nil
	}

	return r.bus.Subscribe(ctx, SubscribePatterns(), r.deliverLocal)
}

// PushToUser sends a frame to every connection of one user, on every
// instance. Best effort: errors are logged, never returned to publishers.
func (r *Registry) PushToUser(ctx context.Context, tenantID, userID uuid.UUID, frame Frame) {
	r.push(ctx, UserTopic(tenantID, userID), frame)
}

// PushToTenant sends a frame to every connected user in a tenant.
func (r *Registry) PushToTenant(ctx context.Context, tenantID uuid.UUID, frame Frame) {
	r.push(ctx, TenantTopic(tenantID), frame)
}

// PushToRole sends a frame to every connected user holding a role in a
// tenant.
func (r *Registry) PushToRole(ctx context.Context, tenantID uuid.UUID, role string, frame Frame) {
	r.push(ctx, RoleTopic(tenantID, role), frame)
}

func (r *Registry) push(ctx context.Context, topic string, frame Frame) {
	payload, err := frame.Encode()
	if err != nil {
		r.logger.Error("failed to encode frame", zap.String("topic", topic), zap.Error(err))
		return
	}

	if r.bus != nil {
		err := r.bus.Publish(ctx, topic, payload)
		if err == nil {
			// Subscribed instances, this one included, deliver locally.
			return
		}
		r.logger.Warn("bus publish failed, falling back to local delivery",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}

	r.deliverLocal(topic, payload)
}

// deliverLocal writes a published frame to the local connections a topic
// addresses.
func (r *Registry) deliverLocal(topic string, payload []byte) {
	targets, err := r.matchLocal(topic)
	if err != nil {
		r.logger.Warn("dropping frame for unrecognized topic", zap.String("topic", topic))
		return
	}

	for _, conn := range targets {
		if err := conn.write(payload); err != nil {
			// Dead connection: drop it silently, the client reconnects.
			r.logger.Debug("write failed, unregistering connection",
				zap.String("userId", conn.UserID.String()),
				zap.Error(err),
			)
			r.Unregister(conn)
			_ = conn.transport.Close()
		}
	}
}

func (r *Registry) matchLocal(topic string) ([]*Connection, error) {
	parts := strings.Split(topic, ":")

	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case len(parts) == 3 && parts[0] == "user":
		key := parts[1] + ":" + parts[2]
		return append([]*Connection(nil), r.conns[key]...), nil

	case len(parts) == 2 && parts[0] == "tenant":
		var targets []*Connection
		prefix := parts[1] + ":"
		for key, conns := range r.conns {
			if strings.HasPrefix(key, prefix) {
				targets = append(targets, conns...)
			}
		}
		return targets, nil

	case len(parts) == 4 && parts[0] == "tenant" && parts[2] == "role":
		var targets []*Connection
		prefix := parts[1] + ":"
		for key, conns := range r.conns {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			for _, conn := range conns {
				if conn.Role == parts[3] {
					targets = append(targets, conn)
				}
			}
		}
		return targets, nil
	}

	return nil, fmt.Errorf("unrecognized topic %q", topic)
}
