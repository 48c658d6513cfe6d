package journal

import (
	"context"
	"sync"

	"github.com/ledgervault/ledgervault/internal/ledger"
)

// Memory is an ordered in-memory journal. It backs development mode and
// tests, where losing records on restart is acceptable.
type Memory struct {
	mu      sync.RWMutex
	records []ledger.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, ev ledger.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, ev)
	return nil
}

// Recent returns the newest n records, oldest first. n <= 0 returns
// everything.
func (m *Memory) Recent(_ context.Context, n int) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.records) {
		n = len(m.records)
	}
	out := make([]ledger.Event, n)
	copy(out, m.records[len(m.records)-n:])
	return out, nil
}

// Len reports how many records the journal holds.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
