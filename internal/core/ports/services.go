package ports

import (
	"context"

	"campuschat/internal/core/domain"
)

// IdentityResolver turns an opaque credential into the presence record of
// the caller. The registry rejects the connection when resolution fails.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (domain.IdentityRecord, error)
}
