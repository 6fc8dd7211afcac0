package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScopeKind determines how an event's audience is resolved.
type ScopeKind string

const (
	ScopeTenant  ScopeKind = "TENANT"
	ScopeClass   ScopeKind = "CLASS"
	ScopeStudent ScopeKind = "STUDENT"
	ScopeThread  ScopeKind = "THREAD"
)

func (k ScopeKind) String() string { return string(k) }

func (k ScopeKind) IsValid() bool {
	switch k {
	case ScopeTenant, ScopeClass, ScopeStudent, ScopeThread:
		return true
	}
	return false
}

func ParseScopeKindFromString(s string) (ScopeKind, error) {
	k := ScopeKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid scope kind %q", ErrValidation, s)
	}
	return k, nil
}

// Scope is the audience-defining dimension of an event. ScopeID is the
// referenced class, student, or thread; unused for tenant-wide scopes.
type Scope struct {
	Kind    ScopeKind
	ScopeID uuid.UUID
}

func (s Scope) Validate() error {
	if !s.Kind.IsValid() {
		return fmt.Errorf("%w: invalid scope kind %q", ErrValidation, s.Kind)
	}
	if s.Kind != ScopeTenant && s.ScopeID == uuid.Nil {
		return fmt.Errorf("%w: scope %s requires a scope id", ErrValidation, s.Kind)
	}
	return nil
}

// Platform event types carried on the wire to webhook receivers and used
// for endpoint subscription matching.
const (
	EventAttendanceMarked      = "attendance.marked"
	EventReportFinalized       = "report.finalized"
	EventMessageSent           = "message.sent"
	EventAnnouncementPublished = "announcement.published"
	EventStudentCreated        = "student.created"
)

// Event is a domain occurrence fanned out to notifications, live pushes,
// and webhooks. It is immutable once published and never persisted.
type Event struct {
	TenantID   uuid.UUID
	Type       string
	Scope      Scope
	Title      string
	Body       string
	Payload    map[string]any
	Reference  *Reference
	OccurredAt time.Time
}

// Reference points a notification at the entity that produced it.
type Reference struct {
	Type string
	ID   uuid.UUID
}

func (e Event) Validate() error {
	if e.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: event type is required", ErrValidation)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	return e.Scope.Validate()
}
