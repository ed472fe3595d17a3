// Package ledgerrpc talks to the remote ledger node: account state queries,
// signed transaction submission, and transaction lookups.
package ledgerrpc

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/tx"
)

// ErrTransport indicates a network or protocol failure talking to the node.
// Rejections are not transport failures; see SubmitResult.
var ErrTransport = errors.New("ledger transport failure")

// AccountState is the node's per-address view: spendable balance in whole
// coins and the last consumed nonce.
type AccountState struct {
	Balance decimal.Decimal
	Nonce   uint64
}

// SubmitResult captures the node's verdict on a submitted transaction.
type SubmitResult struct {
	Accepted bool
	TxHash   string
	Detail   string // raw node response when rejected
}

// TxDetail is the parsed view of an on-chain transaction.
type TxDetail struct {
	Hash      string
	From      string
	To        string
	Amount    decimal.Decimal
	Nonce     uint64
	Timestamp time.Time
	Epoch     int64 // 0 while the transaction is still pending
}

// Client is the boundary contract for the remote node.
type Client interface {
	// AccountState returns balance and nonce for an address. Unknown
	// addresses yield a zero state, not an error.
	AccountState(ctx context.Context, address string) (AccountState, error)
	// Submit sends a signed transaction. A non-nil error means the
	// submission never reached a verdict.
	Submit(ctx context.Context, signed tx.Signed) (SubmitResult, error)
	// RecentTransactions lists the most recent transaction hashes touching
	// an address.
	RecentTransactions(ctx context.Context, address string, limit int) ([]string, error)
	// TransactionDetail fetches one transaction by hash.
	TransactionDetail(ctx context.Context, hash string) (TxDetail, error)
}
