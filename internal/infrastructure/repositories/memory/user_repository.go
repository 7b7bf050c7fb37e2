package memory

import (
	"context"
	"sync"

	"campuschat/internal/core/domain"
	"campuschat/internal/core/ports"
)

type MemoryUserRepository struct {
	byID       map[domain.Identity]*domain.User
	byUsername map[string]*domain.User
	mu         sync.RWMutex
}

func NewMemoryUserRepository() ports.UserRepository {
	return &MemoryUserRepository{
		byID:       make(map[domain.Identity]*domain.User),
		byUsername: make(map[string]*domain.User),
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return domain.ErrUserAlreadyExists
	}

	r.byID[user.ID] = user
	r.byUsername[user.Username] = user
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id domain.Identity) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.byID[id]
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.byUsername[username]
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}
