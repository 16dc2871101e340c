package application

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

// PolicyReport records what one policy pass did.
type PolicyReport struct {
	Skipped    bool               `json:"skipped"`
	SwitchedTo string             `json:"switchedTo,omitempty"`
	Archived   []domain.AccountID `json:"archived,omitempty"`
	Restored   []domain.AccountID `json:"restored,omitempty"`
}

// PolicyService applies the quota policy: keep a usable account active,
// archive depleted ones, restore replenished ones. Frozen accounts are never
// touched. All mutations go through the account service.
type PolicyService struct {
	accounts *AccountService
	usage    *UsageService
	state    ports.StateRepository
	logger   zerolog.Logger

	mu sync.Mutex
}

func NewPolicyService(accounts *AccountService, usage *UsageService, state ports.StateRepository, logger zerolog.Logger) *PolicyService {
	return &PolicyService{
		accounts: accounts,
		usage:    usage,
		state:    state,
		logger:   logger.With().Str("component", "policy").Logger(),
	}
}

// Apply runs one policy pass. A pass already in flight makes this a no-op
// with Skipped set; the loop must never reenter itself.
func (p *PolicyService) Apply(ctx context.Context) (PolicyReport, error) {
	if !p.mu.TryLock() {
		return PolicyReport{Skipped: true}, nil
	}
	defer p.mu.Unlock()

	report := PolicyReport{}

	prefs, err := p.state.LoadState(ctx)
	if err != nil {
		return report, err
	}

	store, err := p.accounts.Store(ctx)
	if err != nil {
		return report, err
	}

	// An absent or non-active active reference gets repaired before any
	// quota decision.
	if store.ActiveAccountID == "" {
		if id, switched := p.activateFirst(ctx, store); switched {
			report.SwitchedTo = string(id)
			if store, err = p.accounts.Store(ctx); err != nil {
				return report, err
			}
		}
	}

	usageByID := p.fetchUsage(ctx, store)

	// Active account out of quota: prefer a non-zero active peer, then a
	// replenished archived account, otherwise stay degraded.
	if active := store.Account(store.ActiveAccountID); active != nil {
		if credits, ok := usageByID[active.ID]; ok && credits.ZeroQuotaRemaining() {
			switchedTo, changed := p.switchAwayFromDepleted(ctx, store, usageByID, prefs)
			if changed {
				report.SwitchedTo = string(switchedTo)
				if store, err = p.accounts.Store(ctx); err != nil {
					return report, err
				}
			}
		}
	}

	if prefs.AutoArchiveZeroQuota {
		archived, archiveErr := p.archiveDepleted(ctx, store, usageByID, prefs)
		if archiveErr != nil {
			return report, archiveErr
		}
		report.Archived = archived
		if len(archived) > 0 {
			if store, err = p.accounts.Store(ctx); err != nil {
				return report, err
			}
		}
	}

	if prefs.AutoUnarchiveNonZeroQuota {
		restored, restoreErr := p.restoreReplenished(ctx, store, usageByID)
		if restoreErr != nil {
			return report, restoreErr
		}
		report.Restored = restored
	}

	return report, nil
}

func (p *PolicyService) activateFirst(ctx context.Context, store domain.AccountsStore) (domain.AccountID, bool) {
	members := store.BucketMembers(domain.BucketActive)
	if len(members) == 0 {
		return "", false
	}

	if _, err := p.accounts.SwitchAccount(ctx, members[0]); err != nil {
		p.logger.Warn().Err(err).Str("account_id", string(members[0])).Msg("could not activate fallback account")
		return "", false
	}
	return members[0], true
}

// fetchUsage refreshes usage for every active and depleted account. A fetch
// that fails stays absent from the map so the policy treats the account as
// unknown rather than depleted.
func (p *PolicyService) fetchUsage(ctx context.Context, store domain.AccountsStore) map[domain.AccountID]domain.CreditsInfo {
	usageByID := make(map[domain.AccountID]domain.CreditsInfo, len(store.Accounts))
	for _, account := range store.Accounts {
		if account.Bucket == domain.BucketFrozen {
			continue
		}

		credits, err := p.usage.FetchForAccount(ctx, account.ID)
		if err != nil {
			p.logger.Warn().Err(err).Str("account_id", string(account.ID)).Msg("usage fetch failed")
			continue
		}
		if credits.Status != domain.CreditsAvailable {
			continue
		}
		usageByID[account.ID] = credits
	}
	return usageByID
}

func (p *PolicyService) switchAwayFromDepleted(ctx context.Context, store domain.AccountsStore, usageByID map[domain.AccountID]domain.CreditsInfo, prefs domain.BootstrapState) (domain.AccountID, bool) {
	for _, id := range store.BucketMembers(domain.BucketActive) {
		if id == store.ActiveAccountID {
			continue
		}
		if credits, ok := usageByID[id]; ok && credits.NonZeroQuotaRemaining() {
			if _, err := p.accounts.SwitchAccount(ctx, id); err != nil {
				p.logger.Warn().Err(err).Str("account_id", string(id)).Msg("could not switch to peer account")
				continue
			}
			return id, true
		}
	}

	if !prefs.AutoUnarchiveNonZeroQuota {
		return "", false
	}

	for _, id := range store.BucketMembers(domain.BucketDepleted) {
		credits, ok := usageByID[id]
		if !ok || !credits.NonZeroQuotaRemaining() {
			continue
		}
		if _, err := p.accounts.UnarchiveAccount(ctx, id); err != nil {
			p.logger.Warn().Err(err).Str("account_id", string(id)).Msg("could not unarchive account")
			continue
		}
		if _, err := p.accounts.SwitchAccount(ctx, id); err != nil {
			p.logger.Warn().Err(err).Str("account_id", string(id)).Msg("could not switch to restored account")
			continue
		}
		return id, true
	}

	return "", false
}

func (p *PolicyService) archiveDepleted(ctx context.Context, store domain.AccountsStore, usageByID map[domain.AccountID]domain.CreditsInfo, prefs domain.BootstrapState) ([]domain.AccountID, error) {
	var archived []domain.AccountID
	switchAway := prefs.AutoSwitchAwayFromArchived

	for _, id := range store.BucketMembers(domain.BucketActive) {
		credits, ok := usageByID[id]
		if !ok || !credits.ZeroQuotaRemaining() {
			continue
		}
		if _, err := p.accounts.ArchiveAccount(ctx, id, &switchAway); err != nil {
			return archived, err
		}
		p.logger.Info().Str("account_id", string(id)).Msg("archived depleted account")
		archived = append(archived, id)
	}

	return archived, nil
}

func (p *PolicyService) restoreReplenished(ctx context.Context, store domain.AccountsStore, usageByID map[domain.AccountID]domain.CreditsInfo) ([]domain.AccountID, error) {
	var restored []domain.AccountID

	for _, id := range store.BucketMembers(domain.BucketDepleted) {
		credits, ok := usageByID[id]
		if !ok || !credits.NonZeroQuotaRemaining() {
			continue
		}
		if _, err := p.accounts.UnarchiveAccount(ctx, id); err != nil {
			return restored, err
		}
		p.logger.Info().Str("account_id", string(id)).Msg("restored replenished account")
		restored = append(restored, id)
	}

	return restored, nil
}
