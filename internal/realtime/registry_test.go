package realtime

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/domain"
)

func TestPushToUserDeliversToEveryConnection(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil, zap.NewNop())
	tenantID := uuid.New()
	userID := uuid.New()

	first := newFakeTransport()
	second := newFakeTransport()
	registry.Register(NewConnection(tenantID, userID, "parent", first))
	registry.Register(NewConnection(tenantID, userID, "parent", second))

	other := newFakeTransport()
	registry.Register(NewConnection(tenantID, uuid.New(), "parent", other))

	registry.PushToUser(context.Background(), tenantID, userID, UnreadCountFrame(1, 2))

	if got := len(first.writes()); got != 1 {
		t.Fatalf("expected 1 frame on first connection, got %d", got)
	}
	if got := len(second.writes()); got != 1 {
		t.Fatalf("expected 1 frame on second connection, got %d", got)
	}
	if got := len(other.writes()); got != 0 {
		t.Fatalf("expected no frames for a different user, got %d", got)
	}
}

func TestPushToTenantStopsAtTenantBoundary(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil, zap.NewNop())
	tenantID := uuid.New()

	inTenant := newFakeTransport()
	registry.Register(NewConnection(tenantID, uuid.New(), "teacher", inTenant))

	outOfTenant := newFakeTransport()
	registry.Register(NewConnection(uuid.New(), uuid.New(), "teacher", outOfTenant))

	registry.PushToTenant(context.Background(), tenantID, Frame{Type: FrameAttendanceUpdate, Data: "x"})

	if got := len(inTenant.writes()); got != 1 {
		t.Fatalf("expected 1 frame inside the tenant, got %d", got)
	}
	if got := len(outOfTenant.writes()); got != 0 {
		t.Fatalf("expected no frames outside the tenant, got %d", got)
	}
}

func TestPushToRoleFiltersByRole(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil, zap.NewNop())
	tenantID := uuid.New()

	teacher := newFakeTransport()
	registry.Register(NewConnection(tenantID, uuid.New(), "teacher", teacher))

	parent := newFakeTransport()
	registry.Register(NewConnection(tenantID, uuid.New(), "parent", parent))

	registry.PushToRole(context.Background(), tenantID, "teacher", UnreadCountFrame(0, 1))

	if got := len(teacher.writes()); got != 1 {
		t.Fatalf("expected 1 frame for the teacher, got %d", got)
	}
	if got := len(parent.writes()); got != 0 {
		t.Fatalf("expected no frames for the parent, got %d", got)
	}
}

func TestDeadConnectionIsDroppedOnWriteFailure(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil, zap.NewNop())
	tenantID := uuid.New()
	userID := uuid.New()

	dead := newFakeTransport()
	dead.writeErr = errors.New("broken pipe")
	registry.Register(NewConnection(tenantID, userID, "parent", dead))

	alive := newFakeTransport()
	registry.Register(NewConnection(tenantID, userID, "parent", alive))

	registry.PushToUser(context.Background(), tenantID, userID, UnreadCountFrame(0, 1))

	if got := registry.ConnectionCount(); got != 1 {
		t.Fatalf("expected dead connection to be unregistered, count = %d", got)
	}
	if !dead.closed() {
		t.Fatal("expected dead connection transport to be closed")
	}
	if got := len(alive.writes()); got != 1 {
		t.Fatalf("expected surviving connection to receive the frame, got %d", got)
	}
}

func TestUnregisterRemovesOnlyTheGivenConnection(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil, zap.NewNop())
	tenantID := uuid.New()
	userID := uuid.New()

	keep := NewConnection(tenantID, userID, "parent", newFakeTransport())
	drop := NewConnection(tenantID, userID, "parent", newFakeTransport())
	registry.Register(keep)
	registry.Register(drop)

	registry.Unregister(drop)

	if got := registry.ConnectionCount(); got != 1 {
		t.Fatalf("expected 1 connection after unregister, got %d", got)
	}
}

func TestPushPrefersBusOverLocalDelivery(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	registry := NewRegistry(bus, zap.NewNop())
	tenantID := uuid.New()
	userID := uuid.New()

	transport := newFakeTransport()
	registry.Register(NewConnection(tenantID, userID, "parent", transport))

	registry.PushToUser(context.Background(), tenantID, userID, UnreadCountFrame(0, 1))

	// A healthy bus round-trips the frame through Subscribe on every
	// instance; the publisher must not also write directly.
	if got := len(transport.writes()); got != 0 {
		t.Fatalf("expected no direct local write when the bus accepted the frame, got %d", got)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 bus publish, got %d", len(bus.published))
	}
	if want := UserTopic(tenantID, userID); bus.published[0].topic != want {
		t.Fatalf("expected topic %q, got %q", want, bus.published[0].topic)
	}

	// Simulate the subscription leg delivering the published frame back.
	registry.deliverLocal(bus.published[0].topic, bus.published[0].payload)
	if got := len(transport.writes()); got != 1 {
		t.Fatalf("expected 1 frame after bus delivery, got %d", got)
	}
}

func TestPushReachesOnlyTheInstanceHoldingTheConnection(t *testing.T) {
	t.Parallel()

	bus := &fanBus{}
	instanceA := NewRegistry(bus, zap.NewNop())
	instanceB := NewRegistry(bus, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = instanceA.Start(ctx) }()
	go func() { _ = instanceB.Start(ctx) }()
	waitForSubscribers(t, bus, 2)

	tenantID := uuid.New()
	userID := uuid.New()

	// The user is connected to instance A only; another user of the same
	// tenant sits on instance B.
	onA := newFakeTransport()
	instanceA.Register(NewConnection(tenantID, userID, "parent", onA))
	bystanderOnB := newFakeTransport()
	instanceB.Register(NewConnection(tenantID, uuid.New(), "parent", bystanderOnB))

	instanceB.PushToUser(context.Background(), tenantID, userID, UnreadCountFrame(0, 1))

	if got := len(onA.writes()); got != 1 {
		t.Fatalf("expected the frame on the instance holding the connection, got %d writes", got)
	}
	if got := len(bystanderOnB.writes()); got != 0 {
		t.Fatalf("expected no frames for other users on the publishing instance, got %d", got)
	}
}

func TestPushFallsBackToLocalWhenBusFails(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{publishErr: errors.New("redis down")}
	registry := NewRegistry(bus, zap.NewNop())
	tenantID := uuid.New()
	userID := uuid.New()

	transport := newFakeTransport()
	registry.Register(NewConnection(tenantID, userID, "parent", transport))

	registry.PushToUser(context.Background(), tenantID, userID, UnreadCountFrame(0, 1))

	if got := len(transport.writes()); got != 1 {
		t.Fatalf("expected local fallback delivery, got %d writes", got)
	}
}

func TestDeliverLocalDropsUnrecognizedTopics(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil, zap.NewNop())
	transport := newFakeTransport()
	registry.Register(NewConnection(uuid.New(), uuid.New(), "parent", transport))

	registry.deliverLocal("bogus:topic:shape:extra:parts", []byte("{}"))

	if got := len(transport.writes()); got != 0 {
		t.Fatalf("expected no delivery for an unrecognized topic, got %d", got)
	}
}

func TestNotificationFrameCarriesReference(t *testing.T) {
	t.Parallel()

	refType := "message"
	refID := uuid.New()
	n := &domain.Notification{
		ID:            uuid.New(),
		Title:         "New message",
		Body:          "Tap to read",
		Type:          domain.EventMessageSent,
		ReferenceType: &refType,
		ReferenceID:   &refID,
	}

	payload, err := NotificationFrame(n).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	for _, want := range []string{
		`"type":"notification"`,
		`"reference_type":"message"`,
		`"reference_id":"` + refID.String() + `"`,
	} {
		if !bytes.Contains(payload, []byte(want)) {
			t.Fatalf("encoded frame missing %s: %s", want, payload)
		}
	}
}

func TestUnreadCountFrameCarriesBothCounts(t *testing.T) {
	t.Parallel()

	payload, err := UnreadCountFrame(3, 7).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	for _, want := range []string{`"messages":3`, `"notifications":7`} {
		if !bytes.Contains(payload, []byte(want)) {
			t.Fatalf("encoded frame missing %s: %s", want, payload)
		}
	}
}

type fakeTransport struct {
	mu        sync.Mutex
	frames    [][]byte
	writeErr  error
	closeDone bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.frames = append(t.frames, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeDone = true
	return nil
}

func (t *fakeTransport) writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.frames...)
}

func (t *fakeTransport) closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeDone
}

type publishedFrame struct {
	topic   string
	payload []byte
}

type fakeBus struct {
	mu         sync.Mutex
	published  []publishedFrame
	publishErr error
}

func (b *fakeBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publishedFrame{topic: topic, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, _ []string, _ func(topic string, payload []byte)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBus) Close() error { return nil }

// fanBus fans every publish into all subscribed handlers synchronously,
// standing in for the Redis relay between process instances.
type fanBus struct {
	mu       sync.Mutex
	handlers []func(topic string, payload []byte)
}

func (b *fanBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	handlers := append(([]func(string, []byte))(nil), b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (b *fanBus) Subscribe(ctx context.Context, _ []string, handler func(topic string, payload []byte)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

func (b *fanBus) Close() error { return nil }

func (b *fanBus) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func waitForSubscribers(t *testing.T, bus *fanBus, want int) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if bus.subscriberCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscribers = %d, want %d", bus.subscriberCount(), want)
}
