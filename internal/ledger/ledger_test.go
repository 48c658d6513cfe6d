package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Record(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

type recordingPayer struct {
	mu    sync.Mutex
	calls []uint64
	err   error
}

func (p *recordingPayer) Pay(_ context.Context, _ Identity, amount uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, amount)
	return p.err
}

func (p *recordingPayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func hasAccount(l *Ledger, id Identity) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[id]
	return ok
}

func TestDepositAccumulates(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	led := New("treasury", nil, sink)

	bal, err := led.Deposit(ctx, "alice", 100)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if bal != 100 {
		t.Fatalf("balance after first deposit = %d, want 100", bal)
	}

	bal, err = led.Deposit(ctx, "alice", 250)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if bal != 350 {
		t.Fatalf("balance after second deposit = %d, want 350", bal)
	}
	if got := led.Balance(ctx, "alice"); got != 350 {
		t.Fatalf("Balance = %d, want 350", got)
	}

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Kind != KindDeposit {
			t.Fatalf("event %d kind = %q, want %q", i, ev.Kind, KindDeposit)
		}
		if ev.Identity != "alice" {
			t.Fatalf("event %d identity = %q, want alice", i, ev.Identity)
		}
	}
	if events[0].Amount != 100 || events[1].Amount != 250 {
		t.Fatalf("event amounts = %d, %d; want 100, 250", events[0].Amount, events[1].Amount)
	}
}

func TestBalanceOfUnknownIdentityIsZero(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if got := led.Balance(ctx, "nobody"); got != 0 {
		t.Fatalf("Balance = %d, want 0", got)
	}
	if hasAccount(led, "nobody") {
		t.Fatalf("reading a balance must not materialize an account")
	}
}

func TestWithdrawPaysOutAndEmits(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	payer := &recordingPayer{}
	led := New("treasury", payer, sink)

	if _, err := led.Deposit(ctx, "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	bal, err := led.Withdraw(ctx, "alice", 40)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if bal != 60 {
		t.Fatalf("balance after withdraw = %d, want 60", bal)
	}
	if payer.count() != 1 || payer.calls[0] != 40 {
		t.Fatalf("payer calls = %v, want a single payout of 40", payer.calls)
	}

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Kind != KindWithdrawal || events[1].Amount != 40 {
		t.Fatalf("second event = %+v, want withdrawal of 40", events[1])
	}
}

func TestWithdrawExactBalanceLeavesZero(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if _, err := led.Deposit(ctx, "alice", 75); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	bal, err := led.Withdraw(ctx, "alice", 75)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if bal != 0 {
		t.Fatalf("balance after full withdrawal = %d, want 0", bal)
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	payer := &recordingPayer{}
	led := New("treasury", payer, sink)

	if _, err := led.Deposit(ctx, "alice", 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Withdraw(ctx, "alice", 11); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("withdraw error = %v, want ErrInsufficientBalance", err)
	}
	if payer.count() != 0 {
		t.Fatalf("payer must not be invoked when the check fails")
	}
	if got := led.Balance(ctx, "alice"); got != 10 {
		t.Fatalf("balance = %d, want untouched 10", got)
	}
	if events := sink.all(); len(events) != 1 {
		t.Fatalf("failed withdrawal must not emit, got %d events", len(events))
	}
}

func TestWithdrawFromUnknownIdentity(t *testing.T) {
	ctx := context.Background()
	payer := &recordingPayer{}
	led := New("treasury", payer, nil)

	if _, err := led.Withdraw(ctx, "ghost", 1); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("withdraw error = %v, want ErrInsufficientBalance", err)
	}
	if payer.count() != 0 {
		t.Fatalf("payer must not be invoked for an unknown identity")
	}
	if hasAccount(led, "ghost") {
		t.Fatalf("failed withdrawal must not materialize an account")
	}
}

func TestWithdrawPayoutFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	payer := &recordingPayer{err: errors.New("acquirer rejected")}
	led := New("treasury", payer, sink)

	if _, err := led.Deposit(ctx, "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := led.Withdraw(ctx, "alice", 40)
	if !errors.Is(err, ErrPayoutFailed) {
		t.Fatalf("withdraw error = %v, want ErrPayoutFailed", err)
	}
	if got := led.Balance(ctx, "alice"); got != 100 {
		t.Fatalf("balance = %d, want 100 restored after failed payout", got)
	}
	if events := sink.all(); len(events) != 1 {
		t.Fatalf("failed payout must not emit a withdrawal, got %d events", len(events))
	}

	// The identity keeps working after the failure.
	if _, err := led.Deposit(ctx, "alice", 1); err != nil {
		t.Fatalf("deposit after failed payout: %v", err)
	}
	if got := led.Balance(ctx, "alice"); got != 101 {
		t.Fatalf("balance = %d, want 101", got)
	}
}

func TestWithdrawCommitsBeforePayout(t *testing.T) {
	ctx := context.Background()
	var led *Ledger
	var observed uint64
	payer := PayerFunc(func(_ context.Context, to Identity, _ uint64) error {
		led.mu.RLock()
		acct := led.accounts[to]
		led.mu.RUnlock()
		observed = acct.balance
		return nil
	})
	led = New("treasury", payer, nil)

	if _, err := led.Deposit(ctx, "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Withdraw(ctx, "alice", 30); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if observed != 70 {
		t.Fatalf("payout observed balance %d, want 70 already decremented", observed)
	}
}

func TestWithdrawIdentityBusyUntilPayoutReturns(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	payer := PayerFunc(func(context.Context, Identity, uint64) error {
		close(entered)
		<-release
		return nil
	})
	led := New("treasury", payer, nil)

	if _, err := led.Deposit(ctx, "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	withdrawDone := make(chan uint64, 1)
	go func() {
		bal, err := led.Withdraw(ctx, "alice", 40)
		if err != nil {
			t.Errorf("withdraw: %v", err)
		}
		withdrawDone <- bal
	}()
	<-entered

	balanceDone := make(chan uint64, 1)
	go func() {
		balanceDone <- led.Balance(ctx, "alice")
	}()
	select {
	case bal := <-balanceDone:
		t.Fatalf("balance read returned %d while payout still pending", bal)
	case <-time.After(50 * time.Millisecond):
	}

	// Other identities stay available while alice's payout is in flight.
	otherDone := make(chan struct{})
	go func() {
		if _, err := led.Deposit(ctx, "bob", 10); err != nil {
			t.Errorf("deposit bob: %v", err)
		}
		close(otherDone)
	}()
	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatalf("operation on another identity blocked by pending payout")
	}

	close(release)
	if bal := <-balanceDone; bal != 60 {
		t.Fatalf("balance after payout = %d, want 60", bal)
	}
	if bal := <-withdrawDone; bal != 60 {
		t.Fatalf("withdraw returned %d, want 60", bal)
	}
}

func TestPayerMayReenterForOtherIdentities(t *testing.T) {
	ctx := context.Background()
	var led *Ledger
	payer := PayerFunc(func(ctx context.Context, to Identity, amount uint64) error {
		if to == "alice" {
			if _, err := led.Deposit(ctx, "fees", 1); err != nil {
				return err
			}
		}
		return nil
	})
	led = New("treasury", payer, nil)

	if _, err := led.Deposit(ctx, "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := led.Withdraw(ctx, "alice", 40)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("withdraw deadlocked on reentrant deposit to another identity")
	}
	if got := led.Balance(ctx, "fees"); got != 1 {
		t.Fatalf("fees balance = %d, want 1", got)
	}
	if got := led.Balance(ctx, "alice"); got != 60 {
		t.Fatalf("alice balance = %d, want 60", got)
	}
}

func TestZeroAmountOperations(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	payer := &recordingPayer{}
	led := New("treasury", payer, sink)

	bal, err := led.Deposit(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("zero deposit: %v", err)
	}
	if bal != 0 {
		t.Fatalf("zero deposit balance = %d, want 0", bal)
	}
	if hasAccount(led, "alice") {
		t.Fatalf("zero deposit must not materialize an account")
	}

	bal, err = led.Withdraw(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("zero withdraw: %v", err)
	}
	if bal != 0 {
		t.Fatalf("zero withdraw balance = %d, want 0", bal)
	}
	if payer.count() != 1 || payer.calls[0] != 0 {
		t.Fatalf("zero withdrawal still runs the payout, calls = %v", payer.calls)
	}
	if hasAccount(led, "alice") {
		t.Fatalf("zero withdrawal must not materialize an account")
	}

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("zero-amount operations still emit, got %d events", len(events))
	}
	if events[0].Kind != KindDeposit || events[1].Kind != KindWithdrawal {
		t.Fatalf("event kinds = %q, %q; want deposit then withdrawal", events[0].Kind, events[1].Kind)
	}

	res, err := led.Transfer(ctx, "alice", "bob", 0)
	if err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if res.FromBalance != 0 || res.ToBalance != 0 {
		t.Fatalf("zero transfer balances = %+v, want zeros", res)
	}
	if hasAccount(led, "alice") || hasAccount(led, "bob") {
		t.Fatalf("zero transfer must not materialize accounts")
	}
}

func TestDepositOverflow(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	led := New("treasury", nil, sink)

	if _, err := led.Deposit(ctx, "whale", math.MaxUint64); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Deposit(ctx, "whale", 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("deposit error = %v, want ErrArithmeticOverflow", err)
	}
	if got := led.Balance(ctx, "whale"); got != math.MaxUint64 {
		t.Fatalf("balance = %d, want untouched max", got)
	}
	if events := sink.all(); len(events) != 1 {
		t.Fatalf("overflowing deposit must not emit, got %d events", len(events))
	}
}

func TestTransferMovesValue(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	led := New("treasury", nil, sink)

	if _, err := led.Deposit(ctx, "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	res, err := led.Transfer(ctx, "alice", "bob", 30)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.FromBalance != 70 || res.ToBalance != 30 {
		t.Fatalf("transfer result = %+v, want 70/30", res)
	}
	if got := led.Balance(ctx, "alice") + led.Balance(ctx, "bob"); got != 100 {
		t.Fatalf("total after transfer = %d, want 100", got)
	}
	// Transfers move value without emitting.
	if events := sink.all(); len(events) != 1 {
		t.Fatalf("expected only the deposit event, got %d", len(events))
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if _, err := led.Deposit(ctx, "alice", 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Transfer(ctx, "alice", "bob", 11); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("transfer error = %v, want ErrInsufficientBalance", err)
	}
	if got := led.Balance(ctx, "alice"); got != 10 {
		t.Fatalf("sender balance = %d, want untouched 10", got)
	}
	if hasAccount(led, "bob") {
		t.Fatalf("failed transfer must not materialize the recipient")
	}
}

func TestTransferFromUnknownIdentity(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if _, err := led.Transfer(ctx, "ghost", "bob", 1); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("transfer error = %v, want ErrInsufficientBalance", err)
	}
	if hasAccount(led, "ghost") || hasAccount(led, "bob") {
		t.Fatalf("failed transfer must not materialize accounts")
	}
}

func TestTransferOverflowOnRecipient(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if _, err := led.Deposit(ctx, "whale", math.MaxUint64); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Deposit(ctx, "alice", 5); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Transfer(ctx, "alice", "whale", 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("transfer error = %v, want ErrArithmeticOverflow", err)
	}
	if got := led.Balance(ctx, "alice"); got != 5 {
		t.Fatalf("sender balance = %d, want untouched 5", got)
	}
	if got := led.Balance(ctx, "whale"); got != math.MaxUint64 {
		t.Fatalf("recipient balance = %d, want untouched max", got)
	}
}

func TestTransferChecksSufficiencyBeforeOverflow(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if _, err := led.Deposit(ctx, "whale", math.MaxUint64); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Deposit(ctx, "alice", 5); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Transfer(ctx, "alice", "whale", 10); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("transfer error = %v, want ErrInsufficientBalance first", err)
	}
}

func TestTransferToSelf(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if _, err := led.Deposit(ctx, "alice", 50); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	res, err := led.Transfer(ctx, "alice", "alice", 20)
	if err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if res.FromBalance != 50 || res.ToBalance != 50 {
		t.Fatalf("self transfer result = %+v, want 50/50", res)
	}
	if _, err := led.Transfer(ctx, "alice", "alice", 51); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("self transfer error = %v, want ErrInsufficientBalance", err)
	}
}

func TestTransferCreatesRecipientAccount(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if _, err := led.Deposit(ctx, "alice", 40); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	res, err := led.Transfer(ctx, "alice", "fresh", 15)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.ToBalance != 15 {
		t.Fatalf("recipient balance = %d, want 15", res.ToBalance)
	}
	if !hasAccount(led, "fresh") {
		t.Fatalf("successful transfer should materialize the recipient")
	}
}

func TestEventsAreSequencedInOperationOrder(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	led := New("treasury", nil, sink)

	if _, err := led.Deposit(ctx, "alice", 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Deposit(ctx, "bob", 20); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.Withdraw(ctx, "alice", 5); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := led.Transfer(ctx, "alice", "bob", 1); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := led.Deposit(ctx, "alice", 0); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	events := sink.all()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	wantKinds := []Kind{KindDeposit, KindDeposit, KindWithdrawal, KindDeposit}
	seen := make(map[string]bool, len(events))
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d seq = %d, want %d", i, ev.Seq, i+1)
		}
		if ev.Kind != wantKinds[i] {
			t.Fatalf("event %d kind = %q, want %q", i, ev.Kind, wantKinds[i])
		}
		if ev.ID == "" || seen[ev.ID] {
			t.Fatalf("event %d has missing or duplicate id %q", i, ev.ID)
		}
		seen[ev.ID] = true
		if ev.At.IsZero() {
			t.Fatalf("event %d has zero timestamp", i)
		}
	}
}

func TestOwnerIsRecordedOnly(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	if led.Owner() != "treasury" {
		t.Fatalf("owner = %q, want treasury", led.Owner())
	}
	// Any identity transacts without involving the owner.
	if _, err := led.Deposit(ctx, "alice", 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if hasAccount(led, "treasury") {
		t.Fatalf("owner must not hold an implicit account")
	}
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	ids := []Identity{"a", "b", "c"}
	for _, id := range ids {
		if _, err := led.Deposit(ctx, id, 1000); err != nil {
			t.Fatalf("seed deposit: %v", err)
		}
	}

	const rounds = 200
	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*rounds)
	for i := 0; i < len(ids); i++ {
		from, to := ids[i], ids[(i+1)%len(ids)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < rounds; n++ {
				if _, err := led.Transfer(ctx, from, to, 1); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("transfer: %v", err)
	}

	var total uint64
	for _, id := range ids {
		total += led.Balance(ctx, id)
	}
	if total != 3000 {
		t.Fatalf("total after concurrent transfers = %d, want 3000", total)
	}
}

func TestConcurrentMixedOperations(t *testing.T) {
	ctx := context.Background()
	led := New("treasury", nil, nil)

	const workers = 8
	const rounds = 100
	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := 0; w < workers; w++ {
		id := Identity(rune('a' + w))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < rounds; n++ {
				if _, err := led.Deposit(ctx, id, 2); err != nil {
					errs <- err
					return
				}
				if _, err := led.Withdraw(ctx, id, 1); err != nil {
					errs <- err
					return
				}
				led.Balance(ctx, id)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("worker: %v", err)
	}

	var total uint64
	for w := 0; w < workers; w++ {
		total += led.Balance(ctx, Identity(rune('a'+w)))
	}
	if total != workers*rounds {
		t.Fatalf("total = %d, want %d", total, workers*rounds)
	}
}
