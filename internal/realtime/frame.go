package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rmupfumira/classup/internal/domain"
)

// Frame type names understood by connected clients. Payload shapes are fixed
// per name and must not drift from what clients already parse.
const (
	FrameNotification     = "notification"
	FrameAttendanceUpdate = "attendance_update"
	FrameMessageReceived  = "message_received"
	FrameUnreadCount      = "unread_count"
)

// Frame is the wire format for the realtime channel.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

type notificationData struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Body          string  `json:"body"`
	Type          string  `json:"notification_type"`
	ReferenceType *string `json:"reference_type,omitempty"`
	ReferenceID   *string `json:"reference_id,omitempty"`
}

// NotificationFrame wraps a persisted notification for live delivery.
func NotificationFrame(n *domain.Notification) Frame {
	data := notificationData{
		ID:            n.ID.String(),
		Title:         n.Title,
		Body:          n.Body,
		Type:          n.Type,
		ReferenceType: n.ReferenceType,
	}
	if n.ReferenceID != nil {
		s := n.ReferenceID.String()
		data.ReferenceID = &s
	}
	return Frame{Type: FrameNotification, Data: data}
}

// UnreadCountFrame carries updated unread totals for a user.
func UnreadCountFrame(messages, notifications int64) Frame {
	return Frame{
		Type: FrameUnreadCount,
		Data: map[string]int64{
			"messages":      messages,
			"notifications": notifications,
		},
	}
}

// AttendanceUpdateFrame carries a live attendance change.
func AttendanceUpdateFrame(studentID, classID uuid.UUID, status string) Frame {
	return Frame{
		Type: FrameAttendanceUpdate,
		Data: map[string]string{
			"student": studentID.String(),
			"class":   classID.String(),
			"status":  status,
		},
	}
}

// MessageReceivedFrame carries a live message preview.
func MessageReceivedFrame(senderID uuid.UUID, preview string) Frame {
	return Frame{
		Type: FrameMessageReceived,
		Data: map[string]string{
			"sender":  senderID.String(),
			"preview": preview,
		},
	}
}
