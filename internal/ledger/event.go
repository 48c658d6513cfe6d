package ledger

import (
	"context"
	"time"
)

// Kind labels the two record types the ledger emits.
type Kind string

const (
	// KindDeposit records value entering an identity's balance.
	KindDeposit Kind = "deposit"
	// KindWithdrawal records value paid out of an identity's balance.
	KindWithdrawal Kind = "withdrawal"
)

// Event is an auditable record of a committed balance change. Seq is a
// process-lifetime sequence assigned in commit order.
type Event struct {
	ID       string
	Seq      uint64
	Kind     Kind
	Identity Identity
	Amount   uint64
	At       time.Time
}

// Sink receives ledger events synchronously, in commit order. Ordering and
// content are the contract; delivery is best effort, and a sink error never
// fails or unwinds the operation that produced the event.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Payer is the external payout primitive. It either durably delivers the full
// amount to the identity or reports failure without delivering anything.
//
// Pay runs while the in-flight withdrawal still holds the identity's account,
// so implementations must not synchronously call back into the ledger for the
// identity being paid. Calls for other identities are safe.
type Payer interface {
	Pay(ctx context.Context, to Identity, amount uint64) error
}

// PayerFunc adapts a function to the Payer interface.
type PayerFunc func(ctx context.Context, to Identity, amount uint64) error

// Pay invokes the function.
func (f PayerFunc) Pay(ctx context.Context, to Identity, amount uint64) error {
	return f(ctx, to, amount)
}
