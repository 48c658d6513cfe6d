package journal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgervault/ledgervault/internal/ledger"
)

// Stream publishes records to a Redis Stream so external consumers can
// tail the ledger without touching its storage.
type Stream struct {
	client *redis.Client
	stream string
}

func NewStream(client *redis.Client, stream string) *Stream {
	return &Stream{client: client, stream: stream}
}

func (j *Stream) Record(ctx context.Context, ev ledger.Event) error {
	err := j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		Values: map[string]any{
			"event_id": ev.ID,
			"seq":      strconv.FormatUint(ev.Seq, 10),
			"kind":     string(ev.Kind),
			"identity": string(ev.Identity),
			"amount":   strconv.FormatUint(ev.Amount, 10),
			"at":       ev.At.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish ledger event: %w", err)
	}
	return nil
}
