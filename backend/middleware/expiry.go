package middleware

import (
	"log/slog"

	"github.com/cardexhq/cardex/cardex/trading"
	"github.com/gofiber/fiber/v2"
)

// ExpiryGate sweeps overdue trades before any trade endpoint runs, so
// listings and lookups never serve a stale open trade. The sweep is
// idempotent and cheap when nothing is due; a sweep failure is logged and
// the request proceeds, since every trade transition re-checks expiry
// anyway.
func ExpiryGate(reconciler *trading.ExpiryReconciler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := reconciler.Sweep(c.Context()); err != nil {
			slog.Warn("Expiry sweep before trade request failed",
				slog.String("path", c.Path()),
				slog.String("error", err.Error()))
		}
		return c.Next()
	}
}
