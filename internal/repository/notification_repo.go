package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rmupfumira/classup/internal/domain"
	"gorm.io/gorm"
)

type ListNotificationsParams struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, tenantID, userID uuid.UUID, params ListNotificationsParams) ([]domain.Notification, int64, error)
	UnreadCount(ctx context.Context, tenantID, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, tenantID, notificationID, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, tenantID, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, tenantID, notificationID, userID uuid.UUID) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) List(
	ctx context.Context,
	tenantID, userID uuid.UUID,
	params ListNotificationsParams,
) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("tenant_id = ? AND user_id = ?", tenantID.String(), userID.String())

	if params.UnreadOnly {
		query = query.Where("is_read = FALSE")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

func (r *GormNotificationRepo) UnreadCount(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("tenant_id = ? AND user_id = ? AND is_read = FALSE", tenantID.String(), userID.String()).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead transitions is_read false to true exactly once; read_at is set on
// that transition and never cleared.
func (r *GormNotificationRepo) MarkRead(ctx context.Context, tenantID, notificationID, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND tenant_id = ? AND user_id = ? AND is_read = FALSE",
			notificationID.String(), tenantID.String(), userID.String()).
		Updates(map[string]any{
			"is_read": true,
			"read_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyMarkReadMiss(ctx, tenantID, notificationID, userID)
	}
	return nil
}

func (r *GormNotificationRepo) classifyMarkReadMiss(ctx context.Context, tenantID, notificationID, userID uuid.UUID) error {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND user_id = ?",
			notificationID.String(), tenantID.String(), userID.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	// Already read; the transition happens only once.
	return domain.ErrConflict
}

func (r *GormNotificationRepo) MarkAllRead(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("tenant_id = ? AND user_id = ? AND is_read = FALSE", tenantID.String(), userID.String()).
		Updates(map[string]any{
			"is_read": true,
			"read_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormNotificationRepo) Delete(ctx context.Context, tenantID, notificationID, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND user_id = ?",
			notificationID.String(), tenantID.String(), userID.String()).
		Delete(&NotificationModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
