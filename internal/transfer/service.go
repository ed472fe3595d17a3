// Package transfer dispatches signed transfers to the ledger node on behalf
// of custodial wallets.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/keys"
	"github.com/octwallet/octwallet/internal/ledgerrpc"
	"github.com/octwallet/octwallet/internal/nonce"
	"github.com/octwallet/octwallet/internal/notification"
	"github.com/octwallet/octwallet/internal/tx"
	"github.com/octwallet/octwallet/internal/txlog"
	"github.com/octwallet/octwallet/internal/wallet"
)

// ErrLedgerRejected indicates the node reached a verdict and refused the
// transaction. The wrapped detail carries the node's raw response.
var ErrLedgerRejected = errors.New("transaction rejected by ledger")

// Service signs and submits transfers, recording accepted ones in the
// transaction log.
type Service struct {
	wallets  *wallet.Service
	ledger   ledgerrpc.Client
	nonces   *nonce.Sequencer
	log      txlog.Repository
	notifier notification.Notifier
	logger   *slog.Logger

	explorerBase   string
	submitInterval time.Duration
}

// Config carries the dispatcher tunables.
type Config struct {
	ExplorerBaseURL string
	SubmitInterval  time.Duration
}

// NewService constructs a transfer dispatcher. The notifier may be nil.
func NewService(wallets *wallet.Service, ledger ledgerrpc.Client, nonces *nonce.Sequencer, log txlog.Repository, notifier notification.Notifier, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		wallets:        wallets,
		ledger:         ledger,
		nonces:         nonces,
		log:            log,
		notifier:       notifier,
		logger:         logger,
		explorerBase:   cfg.ExplorerBaseURL,
		submitInterval: cfg.SubmitInterval,
	}
}

// Recipient is one leg of a dispatch.
type Recipient struct {
	Address string
	Amount  decimal.Decimal
	Memo    string
}

// Receipt describes one accepted submission.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	ExplorerURL string `json:"explorer_url"`
	Recipient   string `json:"recipient"`
	Amount      string `json:"amount"`
}

// Outcome is the per-recipient result of a multi-send. Failed legs carry the
// reason; the batch as a whole still completes.
type Outcome struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Success   bool   `json:"success"`
	TxHash    string `json:"tx_hash,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// err keeps the typed failure when the leg never reached a verdict, so
	// single sends can distinguish transport trouble from a rejection.
	err error
}

// MultiResult aggregates a batch dispatch.
type MultiResult struct {
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`
	Results      []Outcome `json:"results"`
}

// SendSingle signs and submits one transfer from the user's wallet.
func (s *Service) SendSingle(ctx context.Context, userID string, rcpt Recipient) (Receipt, error) {
	res, err := s.dispatch(ctx, userID, []Recipient{rcpt})
	if err != nil {
		return Receipt{}, err
	}
	out := res.Results[0]
	if !out.Success {
		if out.err != nil {
			return Receipt{}, out.err
		}
		return Receipt{}, fmt.Errorf("%w: %s", ErrLedgerRejected, out.Reason)
	}
	return Receipt{
		TxHash:      out.TxHash,
		ExplorerURL: s.explorerURL(out.TxHash),
		Recipient:   out.Recipient,
		Amount:      out.Amount,
	}, nil
}

// SendMulti signs and submits one transfer per recipient, in input order,
// under a single nonce reservation. A rejected leg does not stop the batch.
func (s *Service) SendMulti(ctx context.Context, userID string, recipients []Recipient) (MultiResult, error) {
	if len(recipients) == 0 {
		return MultiResult{}, fmt.Errorf("no recipients")
	}
	return s.dispatch(ctx, userID, recipients)
}

// ExplorerURL returns the public explorer page for a transaction hash.
func (s *Service) ExplorerURL(hash string) string {
	return s.explorerURL(hash)
}

func (s *Service) dispatch(ctx context.Context, userID string, recipients []Recipient) (MultiResult, error) {
	// Reject malformed amounts before touching the wallet or the network.
	for _, r := range recipients {
		if err := tx.ValidateAmount(r.Amount); err != nil {
			return MultiResult{}, err
		}
	}

	w, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return MultiResult{}, err
	}

	kp, err := keys.FromPrivateKey(w.PrivateKey)
	if err != nil {
		return MultiResult{}, fmt.Errorf("stored key unusable: %w", err)
	}
	defer kp.Zero()

	reservation, err := s.nonces.Reserve(ctx, w.Address, len(recipients))
	if err != nil {
		return MultiResult{}, err
	}
	defer reservation.Release()

	result := MultiResult{Results: make([]Outcome, 0, len(recipients))}
	for i, rcpt := range recipients {
		if i > 0 {
			if err := s.pace(ctx); err != nil {
				return result, err
			}
		}

		outcome := s.submitOne(ctx, w, kp, rcpt, reservation.Nonce(i))
		if outcome.Success {
			result.SuccessCount++
		} else {
			result.FailedCount++
		}
		result.Results = append(result.Results, outcome)
	}
	return result, nil
}

func (s *Service) submitOne(ctx context.Context, w wallet.Wallet, kp keys.Keypair, rcpt Recipient, n uint64) Outcome {
	outcome := Outcome{Recipient: rcpt.Address, Amount: rcpt.Amount.String()}

	record, err := tx.BuildTransfer(w.Address, rcpt.Address, rcpt.Amount, n, rcpt.Memo)
	if err != nil {
		outcome.Reason = err.Error()
		outcome.err = err
		return outcome
	}
	sig, err := tx.Sign(record, kp.PrivateKey)
	if err != nil {
		outcome.Reason = err.Error()
		outcome.err = err
		return outcome
	}

	res, err := s.ledger.Submit(ctx, tx.Assemble(record, sig, kp.PublicKey))
	if err != nil {
		outcome.Reason = err.Error()
		outcome.err = err
		return outcome
	}
	if !res.Accepted {
		outcome.Reason = res.Detail
		return outcome
	}

	outcome.Success = true
	outcome.TxHash = res.TxHash

	if err := s.log.Append(ctx, txlog.Record{
		ID:        uuid.New().String(),
		UserID:    w.UserID,
		TxHash:    res.TxHash,
		From:      w.Address,
		To:        rcpt.Address,
		Amount:    rcpt.Amount,
		Nonce:     n,
		Status:    txlog.StatusPending,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		// The transfer is already on the wire; losing the log entry must
		// not fail the dispatch.
		s.logger.Error("append transaction log", "tx_hash", res.TxHash, "error", err)
	}

	s.notifyRecipient(ctx, w, rcpt, res.TxHash)
	return outcome
}

// notifyRecipient tells a custodial recipient about incoming funds. External
// addresses have no wallet here and are silently skipped.
func (s *Service) notifyRecipient(ctx context.Context, sender wallet.Wallet, rcpt Recipient, txHash string) {
	if s.notifier == nil {
		return
	}
	target, err := s.wallets.FindByAddress(ctx, rcpt.Address)
	if err != nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: target.UserID,
		Body:        fmt.Sprintf("You received %s OCT from %s\n%s", rcpt.Amount, sender.Address, s.explorerURL(txHash)),
	})
}

// pace waits out the inter-submission interval, honoring cancellation.
func (s *Service) pace(ctx context.Context) error {
	if s.submitInterval <= 0 {
		return nil
	}
	timer := time.NewTimer(s.submitInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) explorerURL(hash string) string {
	return s.explorerBase + hash
}
