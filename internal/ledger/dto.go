package ledger

import "time"

// DepositRequest credits the caller's own balance.
type DepositRequest struct {
	Amount uint64 `json:"amount"`
}

// WithdrawRequest moves value out of the ledger through the payout connector.
type WithdrawRequest struct {
	Amount uint64 `json:"amount"`
}

// TransferRequest moves value to another identity inside the ledger.
type TransferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// MutationResponse reports the committed balance after a deposit or withdrawal.
type MutationResponse struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
}

// TransferResponse reports both committed balances after a transfer.
type TransferResponse struct {
	Identity  string `json:"identity"`
	To        string `json:"to"`
	Balance   uint64 `json:"balance"`
	ToBalance uint64 `json:"to_balance"`
}

// BalanceResponse reports the caller's committed balance.
type BalanceResponse struct {
	Identity string    `json:"identity"`
	Balance  uint64    `json:"balance"`
	AsOf     time.Time `json:"as_of"`
}

// EventResponse is the journal record shape served by the events endpoint.
type EventResponse struct {
	ID       string    `json:"id"`
	Seq      uint64    `json:"seq"`
	Kind     string    `json:"kind"`
	Identity string    `json:"identity"`
	Amount   uint64    `json:"amount"`
	At       time.Time `json:"at"`
}
