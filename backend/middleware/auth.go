package middleware

import (
	"log/slog"
	"strings"

	"github.com/cardexhq/cardex/backend/utils"
	"github.com/cardexhq/cardex/cardex/services"
	"github.com/gofiber/fiber/v2"
)

// AuthRequired middleware resolves the bearer token into a user id and
// stores it in the request context.
func AuthRequired(sessions *services.SessionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return utils.SendUnauthorized(c, "Missing bearer token")
		}

		userID, ok := sessions.Resolve(token)
		if !ok {
			slog.Debug("Auth required: unknown or expired token")
			return utils.SendUnauthorized(c, "Invalid or expired session")
		}

		c.Locals("user_id", userID)
		c.Locals("session_token", token)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
