package journal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgervault/ledgervault/internal/ledger"
)

// Postgres appends records to the ledger_events table. Amounts are carried
// as NUMERIC(20,0) text so the full uint64 range survives the round trip.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (j *Postgres) Record(ctx context.Context, ev ledger.Event) error {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}
	_, err = j.db.Exec(ctx, `
        INSERT INTO ledger_events (id, seq, kind, identity, amount, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, id, int64(ev.Seq), string(ev.Kind), string(ev.Identity), strconv.FormatUint(ev.Amount, 10), ev.At)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// Recent returns the newest n records, oldest first.
func (j *Postgres) Recent(ctx context.Context, n int) ([]ledger.Event, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := j.db.Query(ctx, `
        SELECT id, seq, kind, identity, amount::text, recorded_at
        FROM ledger_events
        ORDER BY position DESC
        LIMIT $1
    `, n)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		var (
			id         uuid.UUID
			seq        int64
			kind       string
			identity   string
			amountText string
			at         time.Time
		)
		if err := rows.Scan(&id, &seq, &kind, &identity, &amountText, &at); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		amount, err := strconv.ParseUint(amountText, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse event amount: %w", err)
		}
		out = append(out, ledger.Event{
			ID:       id.String(),
			Seq:      uint64(seq),
			Kind:     ledger.Kind(kind),
			Identity: ledger.Identity(identity),
			Amount:   amount,
			At:       at,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}

	// The query walks newest first; callers want emission order.
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}
