package payout

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledgervault/ledgervault/internal/ledger"
)

// Static simulates a payout rail that accepts every transfer, tagging each
// one with a synthetic reference. Real deployments replace it with a
// connector to the host's payout mechanism.
type Static struct {
	logger *slog.Logger
}

// NewStatic builds the approve-all connector. The logger may be nil.
func NewStatic(logger *slog.Logger) *Static {
	return &Static{logger: logger}
}

// Pay approves the payout and traces it with a synthetic reference.
func (s *Static) Pay(_ context.Context, to ledger.Identity, amount uint64) error {
	if s.logger != nil {
		s.logger.Info("payout delivered",
			slog.String("reference", uuid.NewString()),
			slog.String("identity", string(to)),
			slog.Uint64("amount", amount),
		)
	}
	return nil
}
