package history

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes transaction history endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a history HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Recent lists an address's latest transactions.
func (h *Handler) Recent(c *fiber.Ctx) error {
	limit := DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return fiber.NewError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	entries, err := h.service.Recent(c.UserContext(), c.Params("address"), limit)
	if err != nil {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(fiber.Map{"transactions": entries, "count": len(entries)})
}
