package autotx

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/wallet"
)

// Handler exposes auto-transaction endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler builds an auto-transaction HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type startRequest struct {
	UserID          string `json:"user_id"`
	Amount          string `json:"amount"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Start activates auto transactions for a user.
func (h *Handler) Start(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	if err := h.engine.Start(c.UserContext(), req.UserID, amount, duration); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"success": true})
}

type stopRequest struct {
	UserID string `json:"user_id"`
}

// Stop deactivates auto transactions for a user.
func (h *Handler) Stop(c *fiber.Ctx) error {
	var req stopRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.engine.Stop(c.UserContext(), req.UserID); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Status reports the auto-transaction state for a user.
func (h *Handler) Status(c *fiber.Ctx) error {
	status, err := h.engine.Status(c.UserContext(), c.Params("userId"))
	if err != nil {
		return mapError(err)
	}
	resp := fiber.Map{
		"active":  status.Active,
		"running": status.Running,
		"amount":  status.Amount,
	}
	if !status.StartedAt.IsZero() {
		resp["started_at"] = status.StartedAt
		resp["ends_at"] = status.EndsAt
		resp["duration_minutes"] = int(status.Duration / time.Minute)
	}
	if !status.LastCycle.IsZero() {
		resp["last_cycle"] = status.LastCycle
	}
	return c.JSON(resp)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotApproved):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrNotRunning):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrCapacity):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
