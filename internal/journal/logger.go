package journal

import (
	"context"
	"log/slog"

	"github.com/ledgervault/ledgervault/internal/ledger"
)

// Logger writes every record to the structured logger. It never fails, so
// it is safe to fan out alongside durable sinks.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (j *Logger) Record(_ context.Context, ev ledger.Event) error {
	if j.logger == nil {
		return nil
	}
	j.logger.Info("ledger event",
		slog.String("event_id", ev.ID),
		slog.Uint64("seq", ev.Seq),
		slog.String("kind", string(ev.Kind)),
		slog.String("identity", string(ev.Identity)),
		slog.Uint64("amount", ev.Amount),
		slog.Time("at", ev.At),
	)
	return nil
}
