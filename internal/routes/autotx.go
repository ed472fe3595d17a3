package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/octwallet/octwallet/internal/autotx"
)

// RegisterAutoTxRoutes wires auto-transaction control endpoints.
func RegisterAutoTxRoutes(api fiber.Router, h *autotx.Handler) {
	api.Post("/auto/start", h.Start)
	api.Post("/auto/stop", h.Stop)
	api.Get("/auto/status/:userId", h.Status)
}
