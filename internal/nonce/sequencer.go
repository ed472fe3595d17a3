// Package nonce allocates gap-free, strictly increasing nonce ranges per
// sending address.
package nonce

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/octwallet/octwallet/internal/ledgerrpc"
)

// ErrUnavailable indicates the node's nonce could not be read. Callers must
// not guess a nonce: a wrong one is rejected by the ledger or, worse,
// silently reorders later transactions.
var ErrUnavailable = errors.New("nonce unavailable")

// StateQuerier is the slice of the node client the sequencer needs.
type StateQuerier interface {
	AccountState(ctx context.Context, address string) (ledgerrpc.AccountState, error)
}

// Sequencer reserves consecutive nonces for an address. Reservations hold a
// per-address lock from the state query until Release, so concurrent
// dispatches for the same address cannot observe the same base nonce.
type Sequencer struct {
	ledger StateQuerier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSequencer builds a sequencer over the given node client.
func NewSequencer(ledger StateQuerier) *Sequencer {
	return &Sequencer{ledger: ledger, locks: make(map[string]*sync.Mutex)}
}

// Reservation is a contiguous block of nonces held under the address lock.
// Release it once every transaction in the batch has been submitted.
type Reservation struct {
	Base  uint64
	Count int

	release func()
}

// Nonce returns the nonce for the i-th transaction of the batch, in input order.
func (r *Reservation) Nonce(i int) uint64 {
	return r.Base + 1 + uint64(i)
}

// Release unlocks the address. Safe to call more than once.
func (r *Reservation) Release() {
	r.release()
}

// Reserve locks the address, reads its current nonce from the node, and hands
// out `count` consecutive nonces starting at current+1.
func (s *Sequencer) Reserve(ctx context.Context, address string, count int) (*Reservation, error) {
	if count < 1 {
		return nil, fmt.Errorf("reservation count must be positive, got %d", count)
	}

	lock := s.lockFor(address)
	lock.Lock()

	state, err := s.ledger.AccountState(ctx, address)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var once sync.Once
	return &Reservation{
		Base:    state.Nonce,
		Count:   count,
		release: func() { once.Do(lock.Unlock) },
	}, nil
}

func (s *Sequencer) lockFor(address string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[address]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[address] = lock
	}
	return lock
}
