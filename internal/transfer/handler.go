package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/ledgerrpc"
	"github.com/octwallet/octwallet/internal/nonce"
	"github.com/octwallet/octwallet/internal/tx"
	"github.com/octwallet/octwallet/internal/wallet"
)

// Handler exposes transfer dispatch endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a transfer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type sendRequest struct {
	UserID    string `json:"user_id"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Memo      string `json:"memo"`
}

// Send signs and submits a single transfer.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	receipt, err := h.service.SendSingle(c.UserContext(), req.UserID, Recipient{
		Address: req.Recipient,
		Amount:  amount,
		Memo:    req.Memo,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":      true,
		"tx_hash":      receipt.TxHash,
		"explorer_url": receipt.ExplorerURL,
		"recipient":    receipt.Recipient,
		"amount":       receipt.Amount,
	})
}

type multiSendRequest struct {
	UserID     string `json:"user_id"`
	Recipients []struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
		Memo    string `json:"memo"`
	} `json:"recipients"`
}

// SendMulti submits one transfer per recipient under a single nonce block.
func (h *Handler) SendMulti(c *fiber.Ctx) error {
	var req multiSendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if len(req.Recipients) == 0 {
		return fiber.NewError(http.StatusBadRequest, "no recipients")
	}

	recipients := make([]Recipient, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid amount for "+r.Address)
		}
		recipients = append(recipients, Recipient{Address: r.Address, Amount: amount, Memo: r.Memo})
	}

	res, err := h.service.SendMulti(c.UserContext(), req.UserID, recipients)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success_count": res.SuccessCount,
		"failed_count":  res.FailedCount,
		"results":       res.Results,
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, tx.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, nonce.ErrUnavailable), errors.Is(err, ledgerrpc.ErrTransport):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrLedgerRejected):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
