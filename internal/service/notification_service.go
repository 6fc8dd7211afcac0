package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/domain"
	"github.com/rmupfumira/classup/internal/observability"
	"github.com/rmupfumira/classup/internal/realtime"
	"github.com/rmupfumira/classup/internal/repository"
)

// NotificationService persists per-recipient notifications and pushes them
// live. The database record is the durable artifact; the push on top of it
// is best effort.
type NotificationService struct {
	notifications repository.NotificationRepository
	directory     repository.DirectoryRepository
	registry      *realtime.Registry
	logger        *zap.Logger
	metrics       *observability.Metrics
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	directory repository.DirectoryRepository,
	registry *realtime.Registry,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("directory repository is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		directory:     directory,
		registry:      registry,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Notify creates one notification per recipient and pushes it live.
// Failures are isolated per recipient: one failed insert never blocks the
// rest of the audience. The number of created records is returned.
func (s *NotificationService) Notify(ctx context.Context, event domain.Event, recipients []uuid.UUID) int {
	if ctx == nil {
		ctx = context.Background()
	}

	created := 0
	for _, userID := range recipients {
		notification := &domain.Notification{
			ID:       uuid.New(),
			TenantID: event.TenantID,
			UserID:   userID,
			Title:    event.Title,
			Body:     event.Body,
			Type:     event.Type,
		}
		if event.Reference != nil {
			refType := event.Reference.Type
			refID := event.Reference.ID
			notification.ReferenceType = &refType
			notification.ReferenceID = &refID
		}

		if err := s.notifications.Create(ctx, notification); err != nil {
			s.metrics.IncNotificationWriteError()
			observability.WithContextLogger(s.logger, ctx).Error("failed to create notification",
				zap.String("tenantId", event.TenantID.String()),
				zap.String("userId", userID.String()),
				zap.String("eventType", event.Type),
				zap.Error(err),
			)
			continue
		}
		created++
		s.metrics.IncNotificationCreated(notification.Type)

		s.pushNotification(ctx, notification)
	}

	return created
}

func (s *NotificationService) pushNotification(ctx context.Context, n *domain.Notification) {
	s.registry.PushToUser(ctx, n.TenantID, n.UserID, realtime.NotificationFrame(n))
	s.metrics.IncPushPublished(realtime.FrameNotification)

	s.PushUnreadCounts(ctx, n.TenantID, n.UserID)
}

// PushUnreadCounts sends a fresh unread_count frame to one user. Count
// queries failing downgrades to no frame rather than a stale one.
func (s *NotificationService) PushUnreadCounts(ctx context.Context, tenantID, userID uuid.UUID) {
	notifCount, err := s.notifications.UnreadCount(ctx, tenantID, userID)
	if err != nil {
		s.logger.Warn("failed to count unread notifications",
			zap.String("userId", userID.String()),
			zap.Error(err),
		)
		return
	}

	msgCount, err := s.directory.UnreadMessageCount(ctx, tenantID, userID)
	if err != nil {
		s.logger.Warn("failed to count unread messages",
			zap.String("userId", userID.String()),
			zap.Error(err),
		)
		return
	}

	s.registry.PushToUser(ctx, tenantID, userID, realtime.UnreadCountFrame(msgCount, notifCount))
	s.metrics.IncPushPublished(realtime.FrameUnreadCount)
}

// NotificationPage is one page of a user's notification feed.
type NotificationPage struct {
	Notifications []domain.Notification
	Total         int64
	Page          int
	PageSize      int
}

func (s *NotificationService) List(
	ctx context.Context,
	principal auth.Principal,
	params repository.ListNotificationsParams,
) (*NotificationPage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapReadNotifications); err != nil {
		return nil, err
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}

	notifications, total, err := s.notifications.List(ctx, principal.TenantID, principal.UserID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return &NotificationPage{
		Notifications: notifications,
		Total:         total,
		Page:          params.Page,
		PageSize:      params.PageSize,
	}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, principal auth.Principal) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapReadNotifications); err != nil {
		return 0, err
	}
	return s.notifications.UnreadCount(ctx, principal.TenantID, principal.UserID)
}

// MarkRead marks one of the caller's notifications read. Marking an
// already-read notification is a conflict; the read transition happens
// exactly once.
func (s *NotificationService) MarkRead(ctx context.Context, principal auth.Principal, notificationID uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapWriteNotifications); err != nil {
		return err
	}

	if err := s.notifications.MarkRead(ctx, principal.TenantID, notificationID, principal.UserID); err != nil {
		return err
	}

	s.PushUnreadCounts(ctx, principal.TenantID, principal.UserID)
	return nil
}

// MarkAllRead marks every unread notification of the caller read and
// returns how many were affected.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal auth.Principal) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapWriteNotifications); err != nil {
		return 0, err
	}

	count, err := s.notifications.MarkAllRead(ctx, principal.TenantID, principal.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	if count > 0 {
		s.PushUnreadCounts(ctx, principal.TenantID, principal.UserID)
	}
	return count, nil
}

func (s *NotificationService) Delete(ctx context.Context, principal auth.Principal, notificationID uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := auth.Authorize(principal, auth.CapWriteNotifications); err != nil {
		return err
	}
	return s.notifications.Delete(ctx, principal.TenantID, notificationID, principal.UserID)
}
