package memory

import (
	"context"
	"sort"
	"sync"

	"campuschat/internal/core/domain"
	"campuschat/internal/core/ports"
)

type MemoryPresenceRepository struct {
	records map[domain.Identity]domain.IdentityRecord
	mu      sync.RWMutex
}

func NewMemoryPresenceRepository() ports.PresenceRepository {
	return &MemoryPresenceRepository{
		records: make(map[domain.Identity]domain.IdentityRecord),
	}
}

func (r *MemoryPresenceRepository) Put(ctx context.Context, record domain.IdentityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.ID] = record
	return nil
}

func (r *MemoryPresenceRepository) Remove(ctx context.Context, id domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; !exists {
		return domain.ErrIdentityNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *MemoryPresenceRepository) List(ctx context.Context) ([]domain.IdentityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]domain.IdentityRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}

	// Stable output keeps the online-users endpoint deterministic.
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}
