package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/octwallet/octwallet/internal/history"
	"github.com/octwallet/octwallet/internal/wallet"
)

// RegisterWalletRoutes wires wallet lifecycle, balance and history endpoints.
func RegisterWalletRoutes(api fiber.Router, h *wallet.Handler, hist *history.Handler) {
	api.Post("/wallets", h.Create)
	api.Get("/users", h.Users)
	api.Get("/wallets/:userId", h.Info)
	api.Get("/wallets/:userId/keys", h.Keys)
	api.Put("/wallets/:userId/username", h.UpdateUsername)
	api.Put("/wallets/:userId", h.Update)
	api.Post("/wallets/:userId/switch", h.Switch)
	api.Get("/balance/:address", h.Balance)
	api.Get("/transactions/:address", hist.Recent)
}
