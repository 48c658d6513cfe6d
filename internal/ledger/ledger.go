// Package ledger implements the balance accounting engine: per-identity
// credit balances with deposit, withdrawal, transfer and balance-query
// operations, checked arithmetic, and an ordered stream of audit events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientBalance occurs when a withdrawal or transfer asks for
	// more than the caller's balance holds. No state is mutated.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrArithmeticOverflow occurs when an increment would exceed the
	// maximum representable balance. No state is mutated.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrPayoutFailed occurs when the external payout primitive reports
	// failure during a withdrawal. The balance decrement is rolled back
	// before the error is returned, so the failed withdrawal is never
	// observable.
	ErrPayoutFailed = errors.New("payout failed")
)

// Identity is an opaque token naming an account holder. The ledger assumes
// nothing about its structure beyond comparability.
type Identity string

// account holds one identity's balance. Its mutex is held for the full
// read-check-mutate-emit span of any operation touching the identity,
// including the external payout call of a withdrawal: the identity stays
// busy until the payout resolves, so no other operation can observe a
// decrement that a failed payout would roll back.
type account struct {
	mu      sync.Mutex
	balance uint64
}

// Ledger owns the identity-to-balance mapping and enforces the accounting
// rules: balances never go negative, arithmetic never wraps, transfers
// redistribute value without creating or destroying it, and a withdrawal
// commits its balance decrement strictly before the external payout is
// invoked.
//
// Balance entries are created only when an identity first holds value and are
// never removed; a reduced-to-zero balance stays addressable. The ledger is
// safe for concurrent use.
type Ledger struct {
	owner Identity
	payer Payer
	sink  Sink

	mu       sync.RWMutex
	accounts map[Identity]*account

	emitMu sync.Mutex
	seq    uint64
}

// New creates a ledger with an empty balance mapping, recording owner as its
// owner. The owner is written exactly once here and never consulted by any
// operation. A nil payer approves every payout; a nil sink drops events.
func New(owner Identity, payer Payer, sink Sink) *Ledger {
	if payer == nil {
		payer = approveAll{}
	}
	return &Ledger{
		owner:    owner,
		payer:    payer,
		sink:     sink,
		accounts: make(map[Identity]*account),
	}
}

// approveAll is the fallback payout primitive; it accepts every payout.
type approveAll struct{}

func (approveAll) Pay(context.Context, Identity, uint64) error { return nil }

// Owner returns the identity recorded at construction.
func (l *Ledger) Owner() Identity {
	return l.owner
}

// Deposit increases caller's balance by amount and emits a deposit record
// once the new balance is committed. A zero amount is a valid no-op that
// still emits its record. Fails with ErrArithmeticOverflow if the increase
// would exceed the maximum representable balance, leaving the balance
// untouched.
func (l *Ledger) Deposit(ctx context.Context, caller Identity, amount uint64) (uint64, error) {
	acct, ok := l.lookup(caller)
	if !ok {
		if amount == 0 {
			// No entry materializes for an identity that has only
			// ever held zero.
			l.emit(ctx, KindDeposit, caller, 0)
			return 0, nil
		}
		acct = l.ensure(caller)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	next := acct.balance + amount
	if next < acct.balance {
		return 0, ErrArithmeticOverflow
	}
	acct.balance = next

	l.emit(ctx, KindDeposit, caller, amount)
	return next, nil
}

// Withdraw removes amount from caller's balance, delivers it through the
// external payout primitive, and emits a withdrawal record. The order is
// fixed: precondition check, balance decrement, payout, record. The decrement
// is committed before the payout runs, so a payout that re-enters the ledger
// can only ever see the reduced balance.
//
// Fails with ErrInsufficientBalance when the balance cannot cover amount, and
// with ErrPayoutFailed (wrapping the payer's error) when the payout is
// rejected; in the latter case the decrement is restored while the account is
// still held, making the whole operation failure-atomic.
func (l *Ledger) Withdraw(ctx context.Context, caller Identity, amount uint64) (uint64, error) {
	acct, ok := l.lookup(caller)
	if !ok {
		if amount > 0 {
			return 0, ErrInsufficientBalance
		}
		// Zero withdrawal against an untouched identity: nothing to
		// decrement, but the payout and record still happen.
		if err := l.payer.Pay(ctx, caller, 0); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrPayoutFailed, err)
		}
		l.emit(ctx, KindWithdrawal, caller, 0)
		return 0, nil
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.balance < amount {
		return 0, ErrInsufficientBalance
	}

	acct.balance -= amount

	if err := l.payer.Pay(ctx, caller, amount); err != nil {
		// Restore under the still-held account lock: the transient
		// decrement was never visible to any other operation.
		acct.balance += amount
		return 0, fmt.Errorf("%w: %w", ErrPayoutFailed, err)
	}

	l.emit(ctx, KindWithdrawal, caller, amount)
	return acct.balance, nil
}

// TransferResult reports the committed balances after a transfer.
type TransferResult struct {
	FromBalance uint64
	ToBalance   uint64
}

// Transfer moves amount from caller to to as one atomic unit: either both the
// decrement and the increment commit, or neither does. Fails with
// ErrInsufficientBalance when caller's balance cannot cover amount and with
// ErrArithmeticOverflow when the recipient's balance would exceed the maximum
// representable value. Transfers trigger no payout and emit no record; value
// only moves between identities inside the ledger.
func (l *Ledger) Transfer(ctx context.Context, caller, to Identity, amount uint64) (TransferResult, error) {
	if amount == 0 {
		// The precondition holds trivially and nothing moves; no entry
		// materializes for either identity.
		return TransferResult{
			FromBalance: l.Balance(ctx, caller),
			ToBalance:   l.Balance(ctx, to),
		}, nil
	}

	src, ok := l.lookup(caller)
	if !ok {
		return TransferResult{}, ErrInsufficientBalance
	}

	if caller == to {
		src.mu.Lock()
		defer src.mu.Unlock()
		if src.balance < amount {
			return TransferResult{}, ErrInsufficientBalance
		}
		// Self-transfer: the decrement and increment cancel out.
		return TransferResult{FromBalance: src.balance, ToBalance: src.balance}, nil
	}

	for {
		dst, ok := l.lookup(to)
		if ok {
			return l.transferLocked(src, dst, caller, to, amount)
		}

		// Recipient has no entry yet. Settle the sender first and
		// attach the recipient's entry afterwards, all while the
		// sender is held; a fresh entry cannot overflow, so no
		// failure can follow the decrement.
		src.mu.Lock()
		if src.balance < amount {
			src.mu.Unlock()
			return TransferResult{}, ErrInsufficientBalance
		}
		src.balance -= amount
		if l.attach(to, amount) {
			res := TransferResult{FromBalance: src.balance, ToBalance: amount}
			src.mu.Unlock()
			return res, nil
		}

		// Another operation created the recipient's entry first.
		// Restore the sender and retry; entries are never removed, so
		// the retry takes the existing-entry path.
		src.balance += amount
		src.mu.Unlock()
	}
}

// transferLocked moves amount between two existing accounts, taking both
// locks in key order so that opposing transfers cannot deadlock.
func (l *Ledger) transferLocked(src, dst *account, caller, to Identity, amount uint64) (TransferResult, error) {
	first, second := src, dst
	if to < caller {
		first, second = dst, src
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if src.balance < amount {
		return TransferResult{}, ErrInsufficientBalance
	}
	next := dst.balance + amount
	if next < dst.balance {
		return TransferResult{}, ErrArithmeticOverflow
	}

	src.balance -= amount
	dst.balance = next

	return TransferResult{FromBalance: src.balance, ToBalance: dst.balance}, nil
}

// Balance returns caller's balance, zero for an identity the ledger has never
// held value for. It is a pure read; if the identity has a payout in flight,
// the read waits until that withdrawal resolves so it never reports a balance
// the payout outcome could still change.
func (l *Ledger) Balance(_ context.Context, caller Identity) uint64 {
	acct, ok := l.lookup(caller)
	if !ok {
		return 0
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance
}

// lookup returns the identity's account without creating one.
func (l *Ledger) lookup(id Identity) (*account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[id]
	return acct, ok
}

// ensure returns the identity's account, creating an empty one if needed.
func (l *Ledger) ensure(id Identity) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[id]; ok {
		return acct
	}
	acct := &account{}
	l.accounts[id] = acct
	return acct
}

// attach creates an account seeded with balance. It reports false without
// touching the mapping if the identity already has an entry.
func (l *Ledger) attach(id Identity, balance uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[id]; ok {
		return false
	}
	l.accounts[id] = &account{balance: balance}
	return true
}

// emit assigns the next sequence number and hands the record to the sink.
// Emission is serialized so the sink observes events in commit order.
func (l *Ledger) emit(ctx context.Context, kind Kind, id Identity, amount uint64) {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	l.seq++
	if l.sink == nil {
		return
	}
	_ = l.sink.Record(ctx, Event{
		ID:       uuid.NewString(),
		Seq:      l.seq,
		Kind:     kind,
		Identity: id,
		Amount:   amount,
		At:       time.Now().UTC(),
	})
}
