package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledgervault/ledgervault/internal/ledger"
)

// RegisterLedgerRoutes exposes the ledger operations. Money movements are
// registered on the mutating router so idempotency and rate limiting apply;
// reads go straight on the protected router.
func RegisterLedgerRoutes(r fiber.Router, mutating fiber.Router, h *ledger.Handler) {
	mutating.Post("/deposits", h.Deposit)
	mutating.Post("/withdrawals", h.Withdraw)
	mutating.Post("/transfers", h.Transfer)

	r.Get("/balance", h.Balance)
	r.Get("/events", h.Events)
}
