package journal

import (
	"context"
	"errors"

	"github.com/ledgervault/ledgervault/internal/ledger"
)

// Fanout delivers every record to each sink in order. A failing sink does
// not stop the others; errors are joined so callers can log them all.
type Fanout []ledger.Sink

func NewFanout(sinks ...ledger.Sink) Fanout {
	return Fanout(sinks)
}

func (f Fanout) Record(ctx context.Context, ev ledger.Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
