package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/octwallet/octwallet/internal/middleware"
	"github.com/octwallet/octwallet/internal/transfer"
)

// RegisterTransferRoutes wires dispatch endpoints. Sends are rate limited and
// guarded by idempotency keys when Redis is present.
func RegisterTransferRoutes(api fiber.Router, h *transfer.Handler, d Deps) {
	sends := api.Group("/transfers")
	if d.Cache != nil {
		sends.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
		sends.Use(middleware.SendRateLimit(d.Cache, 10))
	}
	sends.Post("/", h.Send)
	sends.Post("/multi", h.SendMulti)
}
