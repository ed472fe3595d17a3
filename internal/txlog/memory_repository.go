package txlog

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryRepository constructs an in-memory transaction log for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Append(_ context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].UserID != userID {
			continue
		}
		out = append(out, r.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
