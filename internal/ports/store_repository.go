package ports

import (
	"context"

	"codex-account-manager/internal/domain"
)

// StoreRepository persists the full accounts store as one document. Mutating
// callers are expected to load, modify in memory, and save the whole store;
// there are no partial writes.
type StoreRepository interface {
	Load(ctx context.Context) (domain.AccountsStore, error)
	Save(ctx context.Context, store domain.AccountsStore) error
	Path() string
}

// StateRepository persists the bootstrap/preferences blob, including the
// usage cache snapshot.
type StateRepository interface {
	LoadState(ctx context.Context) (domain.BootstrapState, error)
	SaveState(ctx context.Context, state domain.BootstrapState) error
}
