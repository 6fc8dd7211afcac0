package auth

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rmupfumira/classup/internal/domain"
)

// Role is the caller's role within a tenant. Token issuance happens in the
// external identity provider; this package only interprets the resolved
// identity.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleParent  Role = "PARENT"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleParent:
		return true
	}
	return false
}

func ParseRoleFromString(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: invalid role %q", domain.ErrValidation, s)
	}
	return r, nil
}

// Capability names an operation a principal may be checked against.
type Capability string

const (
	CapManageWebhooks     Capability = "webhooks:manage"
	CapPublishEvents      Capability = "events:publish"
	CapReadNotifications  Capability = "notifications:read"
	CapWriteNotifications Capability = "notifications:write"
)

// Principal is the explicit per-request identity: constructed once per
// inbound request or connection and threaded as a parameter, never read
// from ambient state.
type Principal struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Role     Role
}

func (p Principal) Validate() error {
	if p.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("%w: invalid role %q", domain.ErrValidation, p.Role)
	}
	return nil
}

var roleCapabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapManageWebhooks:     true,
		CapPublishEvents:      true,
		CapReadNotifications:  true,
		CapWriteNotifications: true,
	},
	RoleTeacher: {
		CapPublishEvents:      true,
		CapReadNotifications:  true,
		CapWriteNotifications: true,
	},
	RoleParent: {
		CapReadNotifications:  true,
		CapWriteNotifications: true,
	},
}

// Authorize checks the principal against a required capability at an
// operation entry point.
func Authorize(p Principal, cap Capability) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !roleCapabilities[p.Role][cap] {
		return fmt.Errorf("%w: role %s lacks %s", domain.ErrForbidden, p.Role, cap)
	}
	return nil
}
