package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/scriptoria/scriptoria-api/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny      = "any"
	AuthRoleAdmin    = "admin"
	AuthRoleStudent  = "student"
	AuthRoleAdvisor  = "advisor"
	AuthRoleVerifier = "verifier"
	AuthRoleExaminer = "examiner"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role           string
	AllowAnonymous bool
}

// WithAuth wraps a handler with basic authentication/authorization guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	// Anonymous access only makes sense when no concrete role is demanded.
	allowAnonymous := opts.AllowAnonymous && role == AuthRoleAny

	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id")
		if userID == nil {
			if allowAnonymous {
				return handler(c)
			}
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		if role == AuthRoleAny {
			return handler(c)
		}

		currentRole := normalizeRoleValue(c.Locals("user_role"))
		if currentRole != role && currentRole != AuthRoleAdmin {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}

		return handler(c)
	}
}
