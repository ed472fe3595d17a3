// Package txlog keeps the append-only audit trail of accepted transfers.
package txlog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatusPending is the status every record starts with; confirmation is
// driven by an external process.
const StatusPending = "pending"

// Record describes one accepted transfer submission.
type Record struct {
	ID        string
	UserID    string
	TxHash    string
	From      string
	To        string
	Amount    decimal.Decimal
	Nonce     uint64
	Status    string
	CreatedAt time.Time
}

// Repository is append-only: records are written once a submission is
// accepted by the ledger and never deleted here.
type Repository interface {
	Append(ctx context.Context, record Record) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
}
