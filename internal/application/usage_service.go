package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

// CreditsFetcher normalizes a credential blob into a usage snapshot. The
// fetcher reports failures inside the CreditsInfo, never as a Go error.
type CreditsFetcher interface {
	FetchCredits(ctx context.Context, auth json.RawMessage) domain.CreditsInfo
}

// UsageService fetches and caches per-account usage. Concurrent fetches for
// the same account are collapsed into one upstream request.
type UsageService struct {
	accounts *AccountService
	fetcher  CreditsFetcher
	state    ports.StateRepository
	credFile ports.CredentialFile
	logger   zerolog.Logger

	flight singleflight.Group
}

func NewUsageService(accounts *AccountService, fetcher CreditsFetcher, state ports.StateRepository, credFile ports.CredentialFile, logger zerolog.Logger) *UsageService {
	return &UsageService{
		accounts: accounts,
		fetcher:  fetcher,
		state:    state,
		credFile: credFile,
		logger:   logger.With().Str("component", "usage").Logger(),
	}
}

// FetchForAccount fetches fresh usage for one managed account and records it
// in the bootstrap-state cache.
func (s *UsageService) FetchForAccount(ctx context.Context, id domain.AccountID) (domain.CreditsInfo, error) {
	result, err, _ := s.flight.Do(string(id), func() (any, error) {
		account, err := s.accounts.Account(ctx, id)
		if err != nil {
			return domain.CreditsInfo{}, err
		}

		credits := s.fetcher.FetchCredits(ctx, account.Auth)
		s.cache(ctx, id, credits)
		return credits, nil
	})
	if err != nil {
		return domain.CreditsInfo{}, err
	}

	return result.(domain.CreditsInfo), nil
}

// FetchForCredentialFile fetches usage for whatever credential is on disk,
// without touching the cache. Used to preview an account before importing it.
func (s *UsageService) FetchForCredentialFile(ctx context.Context) (domain.CreditsInfo, error) {
	blob, err := s.credFile.Read(ctx)
	if err != nil {
		return domain.CreditsInfo{}, err
	}
	if blob == nil {
		return domain.CreditsInfo{}, fmt.Errorf("no credential file at %s", s.credFile.Path())
	}

	return s.fetcher.FetchCredits(ctx, blob), nil
}

// CachedUsage returns the last persisted usage snapshot per account id.
func (s *UsageService) CachedUsage(ctx context.Context) (map[domain.AccountID]domain.CreditsInfo, error) {
	state, err := s.state.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	return state.UsageByID, nil
}

func (s *UsageService) cache(ctx context.Context, id domain.AccountID, credits domain.CreditsInfo) {
	state, err := s.state.LoadState(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not load usage cache")
		return
	}

	state.UsageByID[id] = credits
	if err := s.state.SaveState(ctx, state); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist usage cache")
	}
}
