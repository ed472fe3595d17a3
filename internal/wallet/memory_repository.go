package wallet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.UserID]; exists {
		return errors.New("wallet exists")
	}
	r.storage[wallet.UserID] = wallet
	return nil
}

func (r *memoryRepository) Get(_ context.Context, userID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[userID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) FindByAddress(_ context.Context, address string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.storage {
		if w.Address == address {
			return w, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (r *memoryRepository) Update(_ context.Context, userID string, patch Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.storage[userID]
	if !ok {
		return ErrNotFound
	}
	if patch.Username != nil {
		w.Username = *patch.Username
	}
	if patch.LastNotifiedTx != nil {
		w.LastNotifiedTx = *patch.LastNotifiedTx
	}
	if patch.AutoApproved != nil {
		w.AutoApproved = *patch.AutoApproved
	}
	if patch.AutoActive != nil {
		w.AutoActive = *patch.AutoActive
	}
	if patch.AutoAmount != nil {
		w.AutoAmount = *patch.AutoAmount
	}
	if patch.AutoDuration != nil {
		w.AutoDuration = *patch.AutoDuration
	}
	if patch.AutoStartedAt != nil {
		w.AutoStartedAt = *patch.AutoStartedAt
	}
	if patch.LastAutoCycle != nil {
		w.LastAutoCycle = *patch.LastAutoCycle
	}
	w.UpdatedAt = time.Now().UTC()
	r.storage[userID] = w
	return nil
}

func (r *memoryRepository) SwapKeys(_ context.Context, userID, address, publicKey, privateKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.storage[userID]
	if !ok {
		return ErrNotFound
	}
	w.Address = address
	w.PublicKey = publicKey
	w.PrivateKey = privateKey
	w.Mnemonic = ""
	w.UpdatedAt = time.Now().UTC()
	r.storage[userID] = w
	return nil
}

func (r *memoryRepository) ListUserIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.storage))
	for id := range r.storage {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memoryRepository) ListAutoApproved(_ context.Context, excludeUserID string, limit int) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.storage))
	for id := range r.storage {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Wallet
	for _, id := range ids {
		w := r.storage[id]
		if !w.AutoApproved || w.UserID == excludeUserID {
			continue
		}
		out = append(out, w)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
