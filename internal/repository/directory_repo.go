package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DirectoryRepository reads the tenant-scoped guardian/class/student/thread
// relationships the recipient resolver needs. The backing tables are owned
// by the entity-management modules; this repository only queries them.
type DirectoryRepository interface {
	ActiveGuardianIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	GuardianIDsForClass(ctx context.Context, tenantID, classID uuid.UUID) ([]uuid.UUID, error)
	GuardianIDsForStudent(ctx context.Context, tenantID, studentID uuid.UUID) ([]uuid.UUID, error)
	ThreadParticipantIDs(ctx context.Context, tenantID, threadID uuid.UUID) ([]uuid.UUID, error)
	UnreadMessageCount(ctx context.Context, tenantID, userID uuid.UUID) (int64, error)
	ClassExists(ctx context.Context, tenantID, classID uuid.UUID) (bool, error)
	StudentExists(ctx context.Context, tenantID, studentID uuid.UUID) (bool, error)
	ThreadExists(ctx context.Context, tenantID, threadID uuid.UUID) (bool, error)
}

type GormDirectoryRepo struct {
	db *gorm.DB
}

func NewGormDirectoryRepo(db *gorm.DB) *GormDirectoryRepo {
	return &GormDirectoryRepo{db: db}
}

func (r *GormDirectoryRepo) ActiveGuardianIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("users").
		Where("tenant_id = ? AND role = ? AND is_active = TRUE AND deleted_at IS NULL", tenantID.String(), "PARENT").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return parseUUIDs(ids), nil
}

func (r *GormDirectoryRepo) GuardianIDsForClass(ctx context.Context, tenantID, classID uuid.UUID) ([]uuid.UUID, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("users").
		Joins("JOIN parent_students ON parent_students.parent_id = users.id").
		Joins("JOIN students ON students.id = parent_students.student_id").
		Where("users.tenant_id = ? AND users.deleted_at IS NULL", tenantID.String()).
		Where("students.class_id = ? AND students.is_active = TRUE AND students.deleted_at IS NULL", classID.String()).
		Distinct().
		Pluck("users.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return parseUUIDs(ids), nil
}

func (r *GormDirectoryRepo) GuardianIDsForStudent(ctx context.Context, tenantID, studentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("users").
		Joins("JOIN parent_students ON parent_students.parent_id = users.id").
		Where("users.tenant_id = ? AND users.deleted_at IS NULL", tenantID.String()).
		Where("parent_students.student_id = ?", studentID.String()).
		Distinct().
		Pluck("users.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return parseUUIDs(ids), nil
}

// ThreadParticipantIDs collects the original sender, every recipient, and
// every reply sender of a message thread.
func (r *GormDirectoryRepo) ThreadParticipantIDs(ctx context.Context, tenantID, threadID uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[string]struct{})

	var senderIDs []string
	err := r.db.WithContext(ctx).
		Table("messages").
		Where("tenant_id = ? AND (id = ? OR parent_message_id = ?) AND deleted_at IS NULL",
			tenantID.String(), threadID.String(), threadID.String()).
		Pluck("sender_id", &senderIDs).Error
	if err != nil {
		return nil, err
	}
	for _, id := range senderIDs {
		seen[id] = struct{}{}
	}

	var recipientIDs []string
	err = r.db.WithContext(ctx).
		Table("message_recipients").
		Where("message_id = ?", threadID.String()).
		Pluck("user_id", &recipientIDs).Error
	if err != nil {
		return nil, err
	}
	for _, id := range recipientIDs {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return parseUUIDs(ids), nil
}

// UnreadMessageCount counts unread message receipts for a user. The
// messaging module owns the table; the count rides along on unread_count
// frames so clients refresh both badges from one frame.
func (r *GormDirectoryRepo) UnreadMessageCount(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("message_recipients").
		Joins("JOIN messages ON messages.id = message_recipients.message_id").
		Where("messages.tenant_id = ? AND messages.deleted_at IS NULL", tenantID.String()).
		Where("message_recipients.user_id = ? AND message_recipients.read_at IS NULL", userID.String()).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormDirectoryRepo) ClassExists(ctx context.Context, tenantID, classID uuid.UUID) (bool, error) {
	return r.exists(ctx, "school_classes", tenantID, classID)
}

func (r *GormDirectoryRepo) StudentExists(ctx context.Context, tenantID, studentID uuid.UUID) (bool, error) {
	return r.exists(ctx, "students", tenantID, studentID)
}

func (r *GormDirectoryRepo) ThreadExists(ctx context.Context, tenantID, threadID uuid.UUID) (bool, error) {
	return r.exists(ctx, "messages", tenantID, threadID)
}

func (r *GormDirectoryRepo) exists(ctx context.Context, table string, tenantID, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table(table).
		Where("id = ? AND tenant_id = ? AND deleted_at IS NULL", id.String(), tenantID.String()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func parseUUIDs(ids []string) []uuid.UUID {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		parsed = append(parsed, id)
	}
	return parsed
}
