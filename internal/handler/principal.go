package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rmupfumira/classup/internal/auth"
)

// Identity headers set by the authenticating gateway in front of this
// service. Requests reaching these handlers are already authenticated;
// the headers carry the resolved identity.
const (
	TenantHeader = "X-Tenant-ID"
	UserHeader   = "X-User-ID"
	RoleHeader   = "X-User-Role"
)

const principalLocal = "principal"

// PrincipalMiddleware builds the request principal from identity headers
// and rejects requests without one.
func PrincipalMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := principalFromHeaders(
			c.Get(TenantHeader),
			c.Get(UserHeader),
			c.Get(RoleHeader),
		)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "missing or invalid identity")
		}

		c.Locals(principalLocal, p)
		return c.Next()
	}
}

func principalFromHeaders(tenant, user, role string) (auth.Principal, error) {
	tenantID, err := uuid.Parse(strings.TrimSpace(tenant))
	if err != nil {
		return auth.Principal{}, err
	}
	userID, err := uuid.Parse(strings.TrimSpace(user))
	if err != nil {
		return auth.Principal{}, err
	}
	parsedRole, err := auth.ParseRoleFromString(role)
	if err != nil {
		return auth.Principal{}, err
	}

	p := auth.Principal{TenantID: tenantID, UserID: userID, Role: parsedRole}
	return p, p.Validate()
}

func requestPrincipal(c *fiber.Ctx) (auth.Principal, error) {
	p, ok := c.Locals(principalLocal).(auth.Principal)
	if !ok {
		return auth.Principal{}, fiber.NewError(fiber.StatusUnauthorized, "missing identity")
	}
	return p, nil
}
