package ledger

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgervault/ledgervault/internal/middleware"
)

// EventSource serves back recorded events, oldest first. The readable
// journals satisfy it.
type EventSource interface {
	Recent(ctx context.Context, n int) ([]Event, error)
}

// Handler exposes the ledger operations over HTTP.
type Handler struct {
	ledger *Ledger
	events EventSource
}

// NewHandler builds a ledger HTTP handler. events may be nil when no
// readable journal is configured.
func NewHandler(ledger *Ledger, events EventSource) *Handler {
	return &Handler{ledger: ledger, events: events}
}

func (h *Handler) caller(c *fiber.Ctx) (Identity, error) {
	caller := middleware.CallerFrom(c)
	if caller == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}
	return Identity(caller), nil
}

// Deposit credits the caller's balance.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	balance, err := h.ledger.Deposit(c.UserContext(), caller, req.Amount)
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(MutationResponse{
		Identity: string(caller),
		Balance:  balance,
	})
}

// Withdraw debits the caller's balance and pays the value out.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	balance, err := h.ledger.Withdraw(c.UserContext(), caller, req.Amount)
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(MutationResponse{
		Identity: string(caller),
		Balance:  balance,
	})
}

// Transfer moves value from the caller to another identity.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.To == "" {
		return fiber.NewError(http.StatusBadRequest, "missing transfer recipient")
	}

	result, err := h.ledger.Transfer(c.UserContext(), caller, Identity(req.To), req.Amount)
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(TransferResponse{
		Identity:  string(caller),
		To:        req.To,
		Balance:   result.FromBalance,
		ToBalance: result.ToBalance,
	})
}

// Balance returns the caller's committed balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	caller, err := h.caller(c)
	if err != nil {
		return err
	}
	balance := h.ledger.Balance(c.UserContext(), caller)
	return c.Status(http.StatusOK).JSON(BalanceResponse{
		Identity: string(caller),
		Balance:  balance,
		AsOf:     time.Now().UTC(),
	})
}

// Events serves the newest journal records, oldest first.
func (h *Handler) Events(c *fiber.Ctx) error {
	if h.events == nil {
		return fiber.NewError(http.StatusNotFound, "event journal is not readable")
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	events, err := h.events.Recent(c.UserContext(), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, EventResponse{
			ID:       ev.ID,
			Seq:      ev.Seq,
			Kind:     string(ev.Kind),
			Identity: string(ev.Identity),
			Amount:   ev.Amount,
			At:       ev.At,
		})
	}
	return c.Status(http.StatusOK).JSON(out)
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrArithmeticOverflow):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPayoutFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
