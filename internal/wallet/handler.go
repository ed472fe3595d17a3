package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/octwallet/octwallet/internal/keys"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Create provisions a wallet for a user, or returns the existing one.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.CreateOrLoad(c.UserContext(), req.UserID, req.Username)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	status := http.StatusCreated
	if res.Existed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"success":    true,
		"exists":     res.Existed,
		"address":    res.Address,
		"public_key": res.PublicKey,
	})
}

// Info returns non-sensitive wallet metadata.
func (h *Handler) Info(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("userId"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"user_id":     w.UserID,
		"address":     w.Address,
		"public_key":  w.PublicKey,
		"username":    w.Username,
		"is_imported": w.Imported(),
		"created_at":  w.CreatedAt,
	})
}

// Keys exports the wallet's secret material for user backup.
func (h *Handler) Keys(c *fiber.Ctx) error {
	export, err := h.service.ExportKeys(c.UserContext(), c.Params("userId"))
	if err != nil {
		return mapError(err)
	}
	resp := fiber.Map{
		"address":      export.Address,
		"private_key":  export.PrivateKey,
		"has_mnemonic": export.HasMnemonic,
	}
	if export.HasMnemonic {
		resp["mnemonic"] = export.Mnemonic
	}
	return c.JSON(resp)
}

type usernameRequest struct {
	Username string `json:"username"`
}

// UpdateUsername changes the display label.
func (h *Handler) UpdateUsername(c *fiber.Ctx) error {
	var req usernameRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.UpdateUsername(c.UserContext(), c.Params("userId"), req.Username); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type updateRequest struct {
	LastNotifiedTx *string `json:"last_notified_tx"`
}

// Update applies a partial patch to mutable wallet fields.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.LastNotifiedTx == nil {
		return fiber.NewError(http.StatusBadRequest, "no fields to update")
	}
	if err := h.service.Update(c.UserContext(), c.Params("userId"), Patch{LastNotifiedTx: req.LastNotifiedTx}); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type switchRequest struct {
	PrivateKey string `json:"private_key"`
}

// Switch imports external private key material for the user.
func (h *Handler) Switch(c *fiber.Ctx) error {
	var req switchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	address, err := h.service.Switch(c.UserContext(), c.Params("userId"), req.PrivateKey)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"success": true, "address": address})
}

// Users lists every enrolled user identity.
func (h *Handler) Users(c *fiber.Ctx) error {
	ids, err := h.service.ListUserIDs(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"users": ids})
}

// Balance reports balance and nonce for an address.
func (h *Handler) Balance(c *fiber.Ctx) error {
	info, err := h.service.Balance(c.UserContext(), c.Params("address"))
	if err != nil {
		return fiber.NewError(http.StatusBadGateway, "failed to get balance")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"address": info.Address,
		"balance": info.Balance,
		"nonce":   info.Nonce,
		"as_of":   info.AsOf,
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, keys.ErrInvalidKeyFormat):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
