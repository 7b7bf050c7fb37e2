package ports

import (
	"context"

	"campuschat/internal/core/domain"
)

// UserRepository stores registered accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.Identity) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// PresenceRepository stores the Identity Records of currently connected
// users. The registry writes a record on accept and removes it on
// disconnect, so a record exists exactly while a live connection does.
type PresenceRepository interface {
	Put(ctx context.Context, record domain.IdentityRecord) error
	Remove(ctx context.Context, id domain.Identity) error
	List(ctx context.Context) ([]domain.IdentityRecord, error)
}
