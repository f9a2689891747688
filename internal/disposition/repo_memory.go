package disposition

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepo is an in-memory disposition record Repository.
type MemoryRepo struct {
	mu        sync.Mutex
	bySession map[string]Record

	// FailSaves, when set, makes SaveRecord fail.
	FailSaves bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bySession: make(map[string]Record)}
}

func (r *MemoryRepo) SaveRecord(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSaves {
		return fmt.Errorf("disposition: save failed")
	}
	if _, ok := r.bySession[rec.SessionID]; ok {
		return fmt.Errorf("%w: %s", ErrDispositionExists, rec.SessionID)
	}
	r.bySession[rec.SessionID] = rec
	return nil
}

func (r *MemoryRepo) GetBySession(ctx context.Context, sessionID string) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.bySession[sessionID]
	return rec, ok, nil
}
