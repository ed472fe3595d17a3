package ledgerrpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/tx"
)

// InMemory is a programmable node double for tests: seed balances and nonces,
// configure per-recipient rejections, then inspect what was submitted.
type InMemory struct {
	mu         sync.Mutex
	states     map[string]AccountState
	rejections map[string]string
	details    map[string]TxDetail
	recent     map[string][]string
	submitted  []tx.Signed
	queries    int
	hashSeq    int
	failState  bool
	failSubmit bool
}

// NewInMemory creates an empty node double.
func NewInMemory() *InMemory {
	return &InMemory{
		states:     make(map[string]AccountState),
		rejections: make(map[string]string),
		details:    make(map[string]TxDetail),
		recent:     make(map[string][]string),
	}
}

// SeedState sets the balance and nonce reported for an address.
func (m *InMemory) SeedState(address string, balance decimal.Decimal, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[address] = AccountState{Balance: balance, Nonce: nonce}
}

// RejectRecipient makes every submission to the given recipient fail with detail.
func (m *InMemory) RejectRecipient(address, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[address] = detail
}

// FailAccountState makes subsequent AccountState calls fail with ErrTransport.
func (m *InMemory) FailAccountState(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failState = fail
}

// FailSubmit makes subsequent Submit calls fail with ErrTransport before the
// node records anything.
func (m *InMemory) FailSubmit(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSubmit = fail
}

// SeedTransaction registers a transaction detail and indexes it for both parties.
func (m *InMemory) SeedTransaction(detail TxDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[detail.Hash] = detail
	m.recent[detail.From] = append(m.recent[detail.From], detail.Hash)
	m.recent[detail.To] = append(m.recent[detail.To], detail.Hash)
}

// ForgetTransaction drops a detail while keeping the hash listed, simulating
// a node that has pruned the transaction body.
func (m *InMemory) ForgetTransaction(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.details, hash)
}

// Submitted returns a copy of everything accepted or rejected so far.
func (m *InMemory) Submitted() []tx.Signed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tx.Signed, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// StateQueries reports how many AccountState calls were made.
func (m *InMemory) StateQueries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

func (m *InMemory) AccountState(_ context.Context, address string) (AccountState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.failState {
		return AccountState{}, fmt.Errorf("%w: state query disabled", ErrTransport)
	}
	return m.states[address], nil
}

func (m *InMemory) Submit(_ context.Context, signed tx.Signed) (SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSubmit {
		return SubmitResult{}, fmt.Errorf("%w: connection reset", ErrTransport)
	}
	m.submitted = append(m.submitted, signed)

	if detail, rejected := m.rejections[signed.To]; rejected {
		return SubmitResult{Accepted: false, Detail: detail}, nil
	}

	m.hashSeq++
	return SubmitResult{Accepted: true, TxHash: fmt.Sprintf("%064x", m.hashSeq)}, nil
}

func (m *InMemory) RecentTransactions(_ context.Context, address string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hashes := m.recent[address]
	if limit > 0 && len(hashes) > limit {
		hashes = hashes[len(hashes)-limit:]
	}
	out := make([]string, len(hashes))
	copy(out, hashes)
	return out, nil
}

func (m *InMemory) TransactionDetail(_ context.Context, hash string) (TxDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	detail, ok := m.details[hash]
	if !ok {
		return TxDetail{}, fmt.Errorf("%w: unknown transaction %s", ErrTransport, hash)
	}
	return detail, nil
}
