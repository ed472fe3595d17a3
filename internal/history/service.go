// Package history reads an address's recent on-chain activity from the node.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/ledgerrpc"
)

// DefaultLimit bounds a history query when the caller does not say.
const DefaultLimit = 20

// Entry is one transaction as seen from the queried address's perspective.
type Entry struct {
	Hash      string          `json:"hash"`
	Direction string          `json:"direction"` // "in" or "out"
	Peer      string          `json:"peer"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Status    string          `json:"status"`
}

// Service resolves transaction history.
type Service struct {
	ledger ledgerrpc.Client
	logger *slog.Logger
}

// NewService builds a history service.
func NewService(ledger ledgerrpc.Client, logger *slog.Logger) *Service {
	return &Service{ledger: ledger, logger: logger}
}

// Recent returns the address's latest transactions, newest first. Hashes the
// node lists but cannot detail are skipped rather than failing the whole query.
func (s *Service) Recent(ctx context.Context, address string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	hashes, err := s.ledger.RecentTransactions(ctx, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	entries := make([]Entry, 0, len(hashes))
	for _, hash := range hashes {
		detail, err := s.ledger.TransactionDetail(ctx, hash)
		if err != nil {
			s.logger.Warn("skip transaction detail", "hash", hash, "error", err)
			continue
		}
		entries = append(entries, toEntry(address, detail))
	}

	// Newest first. Sorting on the fetched timestamps avoids trusting
	// whichever order the node happens to list hashes in.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func toEntry(own string, d ledgerrpc.TxDetail) Entry {
	e := Entry{
		Hash:      d.Hash,
		Direction: "in",
		Peer:      d.From,
		Amount:    d.Amount,
		Timestamp: d.Timestamp,
		Status:    "pending",
	}
	if d.From == own {
		e.Direction = "out"
		e.Peer = d.To
	}
	if d.Epoch > 0 {
		e.Status = fmt.Sprintf("confirmed (epoch %d)", d.Epoch)
	}
	return e
}
