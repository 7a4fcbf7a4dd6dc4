package accounts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository used by the dev server and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	byHash map[string]*Account
	byID   map[int64]*Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byHash: map[string]*Account{}, byID: map[int64]*Account{}}
}

func (r *MemoryRepository) Create(_ context.Context, keyHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byHash[keyHash]; ok {
		return 0, errors.New("duplicate api key hash")
	}
	r.nextID++
	a := &Account{ID: r.nextID, KeyHash: keyHash, CreatedAt: time.Now().UTC()}
	r.byHash[keyHash] = a
	r.byID[a.ID] = a
	return a.ID, nil
}

func (r *MemoryRepository) FindByHash(_ context.Context, keyHash string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byHash[keyHash]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) TouchLastUsed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok {
		now := time.Now().UTC()
		a.LastUsedAt = &now
	}
	return nil
}
