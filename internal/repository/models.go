package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rmupfumira/classup/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	TenantID      string  `gorm:"type:uuid;not null"`
	UserID        string  `gorm:"type:uuid;not null"`
	Title         string  `gorm:"type:varchar(255);not null"`
	Body          string  `gorm:"type:text;not null"`
	Type          string  `gorm:"column:notification_type;type:varchar(50);not null"`
	ReferenceType *string `gorm:"type:varchar(50)"`
	ReferenceID   *string `gorm:"type:uuid"`
	IsRead        bool    `gorm:"not null;default:false"`
	ReadAt        *time.Time
	CreatedAt     time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// WebhookEndpointModel is the persistence model for webhook_endpoints.
type WebhookEndpointModel struct {
	ID        string          `gorm:"type:uuid;primaryKey"`
	TenantID  string          `gorm:"type:uuid;not null"`
	URL       string          `gorm:"type:varchar(2048);not null"`
	Secret    string          `gorm:"type:varchar(128);not null"`
	Events    json.RawMessage `gorm:"type:jsonb;not null"`
	IsActive  bool            `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WebhookEndpointModel) TableName() string {
	return "webhook_endpoints"
}

// WebhookDeliveryModel is the persistence model for webhook_deliveries.
type WebhookDeliveryModel struct {
	ID            string                `gorm:"type:uuid;primaryKey"`
	EndpointID    string                `gorm:"type:uuid;not null"`
	EventType     string                `gorm:"type:varchar(100);not null"`
	Payload       json.RawMessage       `gorm:"type:jsonb"`
	Status        domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	Attempts      int                   `gorm:"not null;default:0"`
	LastAttemptAt *time.Time
	NextAttemptAt *time.Time
	ResponseCode  *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (WebhookDeliveryModel) TableName() string {
	return "webhook_deliveries"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:            n.ID.String(),
		TenantID:      n.TenantID.String(),
		UserID:        n.UserID.String(),
		Title:         n.Title,
		Body:          n.Body,
		Type:          n.Type,
		ReferenceType: n.ReferenceType,
		ReferenceID:   uuidPtrToString(n.ReferenceID),
		IsRead:        n.IsRead,
		ReadAt:        n.ReadAt,
		CreatedAt:     n.CreatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:            parseUUID(m.ID),
		TenantID:      parseUUID(m.TenantID),
		UserID:        parseUUID(m.UserID),
		Title:         m.Title,
		Body:          m.Body,
		Type:          m.Type,
		ReferenceType: m.ReferenceType,
		ReferenceID:   stringPtrToUUID(m.ReferenceID),
		IsRead:        m.IsRead,
		ReadAt:        m.ReadAt,
		CreatedAt:     m.CreatedAt,
	}
}

func endpointModelFromDomain(e *domain.WebhookEndpoint) (*WebhookEndpointModel, error) {
	if e == nil {
		return nil, nil
	}

	events, err := json.Marshal(e.Events)
	if err != nil {
		return nil, err
	}

	return &WebhookEndpointModel{
		ID:        e.ID.String(),
		TenantID:  e.TenantID.String(),
		URL:       e.URL,
		Secret:    e.Secret,
		Events:    events,
		IsActive:  e.IsActive,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}, nil
}

func endpointModelToDomain(m *WebhookEndpointModel) *domain.WebhookEndpoint {
	if m == nil {
		return nil
	}

	var events []string
	_ = json.Unmarshal(m.Events, &events)

	return &domain.WebhookEndpoint{
		ID:        parseUUID(m.ID),
		TenantID:  parseUUID(m.TenantID),
		URL:       m.URL,
		Secret:    m.Secret,
		Events:    events,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func deliveryModelFromDomain(d *domain.WebhookDelivery) (*WebhookDeliveryModel, error) {
	if d == nil {
		return nil, nil
	}

	var payload json.RawMessage
	if d.Payload != nil {
		raw, err := json.Marshal(d.Payload)
		if err != nil {
			return nil, err
		}
		payload = raw
	}

	return &WebhookDeliveryModel{
		ID:            d.ID.String(),
		EndpointID:    d.EndpointID.String(),
		EventType:     d.EventType,
		Payload:       payload,
		Status:        d.Status,
		Attempts:      d.Attempts,
		LastAttemptAt: d.LastAttemptAt,
		NextAttemptAt: d.NextAttemptAt,
		ResponseCode:  d.ResponseCode,
		ResponseBody:  d.ResponseBody,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

func deliveryModelToDomain(m *WebhookDeliveryModel) *domain.WebhookDelivery {
	if m == nil {
		return nil
	}

	var payload map[string]any
	if len(m.Payload) > 0 {
		_ = json.Unmarshal(m.Payload, &payload)
	}

	return &domain.WebhookDelivery{
		ID:            parseUUID(m.ID),
		EndpointID:    parseUUID(m.EndpointID),
		EventType:     m.EventType,
		Payload:       payload,
		Status:        m.Status,
		Attempts:      m.Attempts,
		LastAttemptAt: m.LastAttemptAt,
		NextAttemptAt: m.NextAttemptAt,
		ResponseCode:  m.ResponseCode,
		ResponseBody:  m.ResponseBody,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func uuidPtrToString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func stringPtrToUUID(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}
