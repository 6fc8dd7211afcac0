package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/domain"
	"github.com/rmupfumira/classup/internal/repository"
)

// RecipientResolver maps an event scope to the concrete set of users who
// should be notified. Resolution happens once per event, before fan-out, so
// persistence and live push always address the same audience.
type RecipientResolver struct {
	directory repository.DirectoryRepository
	logger    *zap.Logger
}

func NewRecipientResolver(directory repository.DirectoryRepository, logger *zap.Logger) (*RecipientResolver, error) {
	if directory == nil {
		return nil, fmt.Errorf("directory repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecipientResolver{
		directory: directory,
		logger:    logger,
	}, nil
}

// Resolve returns the deduplicated recipient set for a scope. A scope
// referencing a missing or deleted entity yields an empty set and
// dangling=true; that is not an error, the event simply reaches nobody.
func (r *RecipientResolver) Resolve(
	ctx context.Context,
	tenantID uuid.UUID,
	scope domain.Scope,
) (recipients []uuid.UUID, dangling bool, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := scope.Validate(); err != nil {
		return nil, false, err
	}

	var ids []uuid.UUID
	switch scope.Kind {
	case domain.ScopeTenant:
		ids, err = r.directory.ActiveGuardianIDs(ctx, tenantID)

	case domain.ScopeClass:
		exists, existsErr := r.directory.ClassExists(ctx, tenantID, scope.ScopeID)
		if existsErr != nil {
			return nil, false, existsErr
		}
		if !exists {
			r.warnDangling(tenantID, scope)
			return nil, true, nil
		}
		ids, err = r.directory.GuardianIDsForClass(ctx, tenantID, scope.ScopeID)

	case domain.ScopeStudent:
		exists, existsErr := r.directory.StudentExists(ctx, tenantID, scope.ScopeID)
		if existsErr != nil {
			return nil, false, existsErr
		}
		if !exists {
			r.warnDangling(tenantID, scope)
			return nil, true, nil
		}
		ids, err = r.directory.GuardianIDsForStudent(ctx, tenantID, scope.ScopeID)

	case domain.ScopeThread:
		exists, existsErr := r.directory.ThreadExists(ctx, tenantID, scope.ScopeID)
		if existsErr != nil {
			return nil, false, existsErr
		}
		if !exists {
			r.warnDangling(tenantID, scope)
			return nil, true, nil
		}
		ids, err = r.directory.ThreadParticipantIDs(ctx, tenantID, scope.ScopeID)

	default:
		return nil, false, fmt.Errorf("%w: invalid scope kind %q", domain.ErrValidation, scope.Kind)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve %s scope: %w", scope.Kind, err)
	}

	return dedupeIDs(ids), false, nil
}

func (r *RecipientResolver) warnDangling(tenantID uuid.UUID, scope domain.Scope) {
	r.logger.Warn("event scope references a missing entity",
		zap.String("tenantId", tenantID.String()),
		zap.String("scopeKind", scope.Kind.String()),
		zap.String("scopeId", scope.ScopeID.String()),
	)
}

// dedupeIDs preserves first-seen order. A guardian of two students in the
// same class must be notified once, not twice.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
