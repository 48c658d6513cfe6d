// Package journal provides the event sinks the ledger records through:
// an in-memory journal for development and tests, a structured-log sink, a
// PostgreSQL journal, a Redis Stream publisher, and a fanout combinator.
package journal

import (
	"context"

	"github.com/ledgervault/ledgervault/internal/ledger"
)

// Reader is implemented by journals that can serve back the records they
// stored, in emission order.
type Reader interface {
	Recent(ctx context.Context, n int) ([]ledger.Event, error)
}
