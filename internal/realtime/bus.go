package realtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Bus is the cross-instance publish/subscribe relay. Implementations are
// injected by the startup coordinator; a nil Bus degrades the registry to
// local-process delivery.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe delivers every message matching the patterns to handler
	// until ctx is canceled. Patterns use glob syntax (user:*, tenant:*).
	Subscribe(ctx context.Context, patterns []string, handler func(topic string, payload []byte)) error
	Close() error
}

// Topic name layout shared by every process instance.
func UserTopic(tenantID, userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:%s", tenantID, userID)
}

func TenantTopic(tenantID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s", tenantID)
}

func RoleTopic(tenantID uuid.UUID, role string) string {
	return fmt.Sprintf("tenant:%s:role:%s", tenantID, role)
}

// SubscribePatterns covers every topic shape the registry publishes.
func SubscribePatterns() []string {
	return []string{"user:*", "tenant:*"}
}
