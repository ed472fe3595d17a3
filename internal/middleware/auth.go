package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ServiceAuth guards the API with a single shared bearer token. The caller is
// the bot frontend, not end users, so one service credential suffices. An
// empty token disables the check for local development.
func ServiceAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		presented := strings.TrimSpace(authz[len("Bearer "):])
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		return c.Next()
	}
}
