package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reference type names used by notification frames and list responses.
const (
	ReferenceAttendance   = "attendance"
	ReferenceReport       = "report"
	ReferenceMessage      = "message"
	ReferenceAnnouncement = "announcement"
	ReferenceStudent      = "student"
)

// Typed constructors for the platform's event shapes. Domain modules call
// these instead of assembling Event literals so payload keys and scope
// choices stay consistent across publishers.

func NewAttendanceMarkedEvent(tenantID, studentID, classID uuid.UUID, studentName, status string) Event {
	return Event{
		TenantID: tenantID,
		Type:     EventAttendanceMarked,
		Scope:    Scope{Kind: ScopeStudent, ScopeID: studentID},
		Title:    fmt.Sprintf("Attendance: %s", studentName),
		Body:     fmt.Sprintf("%s was marked %s", studentName, status),
		Payload: map[string]any{
			"studentId": studentID.String(),
			"classId":   classID.String(),
			"status":    status,
		},
		Reference:  &Reference{Type: ReferenceAttendance, ID: studentID},
		OccurredAt: time.Now().UTC(),
	}
}

func NewReportFinalizedEvent(tenantID, studentID, reportID uuid.UUID, studentName, period string) Event {
	return Event{
		TenantID: tenantID,
		Type:     EventReportFinalized,
		Scope:    Scope{Kind: ScopeStudent, ScopeID: studentID},
		Title:    fmt.Sprintf("Report ready: %s", studentName),
		Body:     fmt.Sprintf("The %s report for %s is available", period, studentName),
		Payload: map[string]any{
			"studentId": studentID.String(),
			"reportId":  reportID.String(),
			"period":    period,
		},
		Reference:  &Reference{Type: ReferenceReport, ID: reportID},
		OccurredAt: time.Now().UTC(),
	}
}

func NewMessageSentEvent(tenantID, threadID, messageID uuid.UUID, senderName, preview string) Event {
	return Event{
		TenantID: tenantID,
		Type:     EventMessageSent,
		Scope:    Scope{Kind: ScopeThread, ScopeID: threadID},
		Title:    fmt.Sprintf("New message from %s", senderName),
		Body:     preview,
		Payload: map[string]any{
			"threadId":  threadID.String(),
			"messageId": messageID.String(),
			"preview":   preview,
		},
		Reference:  &Reference{Type: ReferenceMessage, ID: messageID},
		OccurredAt: time.Now().UTC(),
	}
}

// NewAnnouncementPublishedEvent targets one class when classID is set,
// otherwise the whole tenant.
func NewAnnouncementPublishedEvent(tenantID, announcementID uuid.UUID, classID *uuid.UUID, title, preview string) Event {
	scope := Scope{Kind: ScopeTenant}
	payload := map[string]any{
		"announcementId": announcementID.String(),
		"title":          title,
	}
	if classID != nil {
		scope = Scope{Kind: ScopeClass, ScopeID: *classID}
		payload["classId"] = classID.String()
	}

	return Event{
		TenantID:   tenantID,
		Type:       EventAnnouncementPublished,
		Scope:      scope,
		Title:      title,
		Body:       preview,
		Payload:    payload,
		Reference:  &Reference{Type: ReferenceAnnouncement, ID: announcementID},
		OccurredAt: time.Now().UTC(),
	}
}

func NewStudentCreatedEvent(tenantID, studentID uuid.UUID, studentName string) Event {
	return Event{
		TenantID: tenantID,
		Type:     EventStudentCreated,
		Scope:    Scope{Kind: ScopeStudent, ScopeID: studentID},
		Title:    fmt.Sprintf("Student enrolled: %s", studentName),
		Body:     fmt.Sprintf("%s was added to the school", studentName),
		Payload: map[string]any{
			"studentId": studentID.String(),
			"name":      studentName,
		},
		Reference:  &Reference{Type: ReferenceStudent, ID: studentID},
		OccurredAt: time.Now().UTC(),
	}
}
