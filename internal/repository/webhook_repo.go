package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rmupfumira/classup/internal/domain"
	"gorm.io/gorm"
)

type WebhookEndpointRepository interface {
	Create(ctx context.Context, e *domain.WebhookEndpoint) error
	GetByID(ctx context.Context, tenantID, endpointID uuid.UUID) (*domain.WebhookEndpoint, error)
	// Get looks an endpoint up without tenant scoping. Only the delivery
	// executor uses it; API paths must go through GetByID.
	Get(ctx context.Context, endpointID uuid.UUID) (*domain.WebhookEndpoint, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.WebhookEndpoint, error)
	ListActiveForEvent(ctx context.Context, tenantID uuid.UUID, eventType string) ([]domain.WebhookEndpoint, error)
	Update(ctx context.Context, e *domain.WebhookEndpoint) error
	Delete(ctx context.Context, tenantID, endpointID uuid.UUID) error
}

type WebhookDeliveryRepository interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	GetByID(ctx context.Context, deliveryID uuid.UUID) (*domain.WebhookDelivery, error)
	ListByEndpoint(ctx context.Context, endpointID uuid.UUID, limit int) ([]domain.WebhookDelivery, error)
	RecordAttempt(ctx context.Context, d *domain.WebhookDelivery) error
	MarkPendingForRetry(ctx context.Context, deliveryID uuid.UUID) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.WebhookDelivery, error)
	ClearNextAttemptAt(ctx context.Context, deliveryID uuid.UUID) error
}

type GormWebhookEndpointRepo struct {
	db *gorm.DB
}

func NewGormWebhookEndpointRepo(db *gorm.DB) *GormWebhookEndpointRepo {
	return &GormWebhookEndpointRepo{db: db}
}

func (r *GormWebhookEndpointRepo) Create(ctx context.Context, e *domain.WebhookEndpoint) error {
	model, err := endpointModelFromDomain(e)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *endpointModelToDomain(model)
	}
	return nil
}

func (r *GormWebhookEndpointRepo) GetByID(ctx context.Context, tenantID, endpointID uuid.UUID) (*domain.WebhookEndpoint, error) {
	var model WebhookEndpointModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", endpointID.String(), tenantID.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return endpointModelToDomain(&model), nil
}

func (r *GormWebhookEndpointRepo) Get(ctx context.Context, endpointID uuid.UUID) (*domain.WebhookEndpoint, error) {
	var model WebhookEndpointModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", endpointID.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return endpointModelToDomain(&model), nil
}

func (r *GormWebhookEndpointRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	var models []WebhookEndpointModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID.String()).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	endpoints := make([]domain.WebhookEndpoint, 0, len(models))
	for i := range models {
		endpoints = append(endpoints, *endpointModelToDomain(&models[i]))
	}
	return endpoints, nil
}

// ListActiveForEvent filters the subscribed event set in the database; the
// events column is a JSONB array of event type strings.
func (r *GormWebhookEndpointRepo) ListActiveForEvent(
	ctx context.Context,
	tenantID uuid.UUID,
	eventType string,
) ([]domain.WebhookEndpoint, error) {
	var models []WebhookEndpointModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = TRUE AND events @> ?", tenantID.String(), `["`+eventType+`"]`).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	endpoints := make([]domain.WebhookEndpoint, 0, len(models))
	for i := range models {
		endpoints = append(endpoints, *endpointModelToDomain(&models[i]))
	}
	return endpoints, nil
}

func (r *GormWebhookEndpointRepo) Update(ctx context.Context, e *domain.WebhookEndpoint) error {
	model, err := endpointModelFromDomain(e)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&WebhookEndpointModel{}).
		Where("id = ? AND tenant_id = ?", model.ID, model.TenantID).
		Updates(map[string]any{
			"url":       model.URL,
			"events":    model.Events,
			"is_active": model.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookEndpointRepo) Delete(ctx context.Context, tenantID, endpointID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", endpointID.String(), tenantID.String()).
		Delete(&WebhookEndpointModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type GormWebhookDeliveryRepo struct {
	db *gorm.DB
}

func NewGormWebhookDeliveryRepo(db *gorm.DB) *GormWebhookDeliveryRepo {
	return &GormWebhookDeliveryRepo{db: db}
}

func (r *GormWebhookDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	model, err := deliveryModelFromDomain(d)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormWebhookDeliveryRepo) GetByID(ctx context.Context, deliveryID uuid.UUID) (*domain.WebhookDelivery, error) {
	var model WebhookDeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", deliveryID.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormWebhookDeliveryRepo) ListByEndpoint(
	ctx context.Context,
	endpointID uuid.UUID,
	limit int,
) ([]domain.WebhookDelivery, error) {
	if limit < 1 {
		limit = 50
	}

	var models []WebhookDeliveryModel
	err := r.db.WithContext(ctx).
		Where("endpoint_id = ?", endpointID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.WebhookDelivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries, nil
}

// RecordAttempt persists the outcome of one delivery attempt: status,
// attempt count, response metadata and retry scheduling in a single update.
func (r *GormWebhookDeliveryRepo) RecordAttempt(ctx context.Context, d *domain.WebhookDelivery) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("id = ?", d.ID.String()).
		Updates(map[string]any{
			"status":          d.Status,
			"attempts":        d.Attempts,
			"last_attempt_at": d.LastAttemptAt,
			"next_attempt_at": d.NextAttemptAt,
			"response_code":   d.ResponseCode,
			"response_body":   d.ResponseBody,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkPendingForRetry resets a FAILED delivery so it can be re-attempted.
// Attempt history is kept.
func (r *GormWebhookDeliveryRepo) MarkPendingForRetry(ctx context.Context, deliveryID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("id = ? AND status = ?", deliveryID.String(), domain.DeliveryFailed).
		Updates(map[string]any{
			"status":          domain.DeliveryPending,
			"next_attempt_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormWebhookDeliveryRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.WebhookDelivery, error) {
	var models []WebhookDeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.DeliveryPending, time.Now()).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.WebhookDelivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries, nil
}

func (r *GormWebhookDeliveryRepo) ClearNextAttemptAt(ctx context.Context, deliveryID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&WebhookDeliveryModel{}).
		Where("id = ?", deliveryID.String()).
		Update("next_attempt_at", nil).Error
}
