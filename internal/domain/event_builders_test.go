package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestTypedEventConstructorsProduceValidEvents(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	classID := uuid.New()

	events := []Event{
		NewAttendanceMarkedEvent(tenantID, uuid.New(), classID, "Ada Lovelace", "ABSENT"),
		NewReportFinalizedEvent(tenantID, uuid.New(), uuid.New(), "Ada Lovelace", "Term 2"),
		NewMessageSentEvent(tenantID, uuid.New(), uuid.New(), "Ms. Hopper", "Field trip on Friday"),
		NewAnnouncementPublishedEvent(tenantID, uuid.New(), nil, "Sports day", "Saved the date"),
		NewAnnouncementPublishedEvent(tenantID, uuid.New(), &classID, "Class photo", "Bring uniforms"),
		NewStudentCreatedEvent(tenantID, uuid.New(), "Ada Lovelace"),
	}

	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			t.Fatalf("%s event failed validation: %v", ev.Type, err)
		}
		if ev.Reference == nil {
			t.Fatalf("%s event has no reference", ev.Type)
		}
		if ev.OccurredAt.IsZero() {
			t.Fatalf("%s event has no occurrence time", ev.Type)
		}
	}
}

func TestAnnouncementScopeFollowsClassTargeting(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	classID := uuid.New()

	tenantWide := NewAnnouncementPublishedEvent(tenantID, uuid.New(), nil, "Holiday", "School closed Monday")
	if tenantWide.Scope.Kind != ScopeTenant {
		t.Fatalf("tenant-wide announcement scope = %s", tenantWide.Scope.Kind)
	}

	classOnly := NewAnnouncementPublishedEvent(tenantID, uuid.New(), &classID, "Class photo", "Bring uniforms")
	if classOnly.Scope.Kind != ScopeClass || classOnly.Scope.ScopeID != classID {
		t.Fatalf("class announcement scope = %+v", classOnly.Scope)
	}
}
