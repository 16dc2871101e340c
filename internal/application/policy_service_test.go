package application

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codex-account-manager/internal/domain"
)

type policyFixture struct {
	accounts *accountsFixture
	fetcher  *mapFetcher
	service  *PolicyService
}

func newPolicyFixture(t *testing.T) *policyFixture {
	t.Helper()

	accounts := newAccountsFixture(t)
	fetcher := newMapFetcher()
	usage := NewUsageService(accounts.service, fetcher, accounts.repo, accounts.cred, zerolog.Nop())
	service := NewPolicyService(accounts.service, usage, accounts.repo, zerolog.Nop())
	return &policyFixture{accounts: accounts, fetcher: fetcher, service: service}
}

func (f *policyFixture) setPrefs(t *testing.T, mutate func(*domain.BootstrapState)) {
	t.Helper()

	ctx := context.Background()
	state, err := f.accounts.repo.LoadState(ctx)
	require.NoError(t, err)
	mutate(&state)
	require.NoError(t, f.accounts.repo.SaveState(ctx, state))
}

func TestPolicySwitchesAwayFromDepletedActive(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)
	ctx := context.Background()

	f.accounts.seed(t, domain.AccountsStore{
		ActiveAccountID: "a",
		Accounts: []domain.ManagedAccount{
			seedAccount("a", domain.BucketActive),
			seedAccount("b", domain.BucketActive),
		},
	})
	f.fetcher.byID["acct-a"] = availableCredits(0)
	f.fetcher.byID["acct-b"] = availableCredits(50)

	report, err := f.service.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", report.SwitchedTo)
	// The depleted account is archived in the same pass; both steps run
	// out of the box.
	assert.Equal(t, []domain.AccountID{"a"}, report.Archived)

	store, err := f.accounts.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountID("b"), store.ActiveAccountID)
	assert.Equal(t, domain.BucketDepleted, store.Account("a").Bucket)
}

func TestPolicyArchivesZeroQuotaAccounts(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)
	ctx := context.Background()

	f.accounts.seed(t, domain.AccountsStore{
		ActiveAccountID: "a",
		Accounts: []domain.ManagedAccount{
			seedAccount("a", domain.BucketActive),
			seedAccount("b", domain.BucketActive),
		},
	})
	f.fetcher.byID["acct-a"] = availableCredits(60)
	f.fetcher.byID["acct-b"] = availableCredits(0)

	report, err := f.service.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"b"}, report.Archived)

	store, err := f.accounts.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BucketDepleted, store.Accounts[1].Bucket)
	assert.Equal(t, domain.AccountID("a"), store.ActiveAccountID)
}

func TestPolicyRestoresReplenishedAccounts(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)
	ctx := context.Background()

	f.accounts.seed(t, domain.AccountsStore{
		ActiveAccountID: "a",
		Accounts: []domain.ManagedAccount{
			seedAccount("a", domain.BucketActive),
			seedAccount("b", domain.BucketDepleted),
			seedAccount("c", domain.BucketDepleted),
		},
	})
	f.fetcher.byID["acct-a"] = availableCredits(60)
	f.fetcher.byID["acct-b"] = availableCredits(30)
	f.fetcher.byID["acct-c"] = availableCredits(0)

	report, err := f.service.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{"b"}, report.Restored)

	store, err := f.accounts.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BucketActive, store.Account("b").Bucket)
	assert.Equal(t, domain.BucketDepleted, store.Account("c").Bucket)
}

func TestPolicyUnarchivesWhenNoActivePeerHasQuota(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)
	ctx := context.Background()

	f.accounts.seed(t, domain.AccountsStore{
		ActiveAccountID: "a",
		Accounts: []domain.ManagedAccount{
			seedAccount("a", domain.BucketActive),
			seedAccount("b", domain.BucketDepleted),
		},
	})
	f.fetcher.byID["acct-a"] = availableCredits(0)
	f.fetcher.byID["acct-b"] = availableCredits(90)

	report, err := f.service.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", report.SwitchedTo)
	assert.Equal(t, []domain.AccountID{"a"}, report.Archived)

	store, err := f.accounts.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BucketActive, store.Account("b").Bucket)
	assert.Equal(t, domain.BucketDepleted, store.Account("a").Bucket)
	assert.Equal(t, domain.AccountID("b"), store.ActiveAccountID)
}

func TestPolicyGatesCanBeDisabled(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)
	ctx := context.Background()

	f.setPrefs(t, func(state *domain.BootstrapState) {
		state.AutoArchiveZeroQuota = false
		state.AutoUnarchiveNonZeroQuota = false
	})
	f.accounts.seed(t, domain.AccountsStore{
		ActiveAccountID: "a",
		Accounts: []domain.ManagedAccount{
			seedAccount("a", domain.BucketActive),
			seedAccount("b", domain.BucketActive),
			seedAccount("c", domain.BucketDepleted),
		},
	})
	f.fetcher.byID["acct-a"] = availableCredits(0)
	f.fetcher.byID["acct-b"] = availableCredits(50)
	f.fetcher.byID["acct-c"] = availableCredits(40)

	report, err := f.service.Apply(ctx)
	require.NoError(t, err)

	// Switching away from a depleted active is never gated, but archive and
	// restore honor the opt-out.
	assert.Equal(t, "b", report.SwitchedTo)
	assert.Empty(t, report.Archived)
	assert.Empty(t, report.Restored)

	store, err := f.accounts.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BucketActive, store.Account("a").Bucket)
	assert.Equal(t, domain.BucketDepleted, store.Account("c").Bucket)
}

func TestPolicyRepairsMissingActiveReference(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)
	ctx := context.Background()

	f.accounts.seed(t, domain.AccountsStore{
		Accounts: []domain.ManagedAccount{
			seedAccount("a", domain.BucketActive),
		},
	})
	f.fetcher.byID["acct-a"] = availableCredits(60)

	report, err := f.service.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", report.SwitchedTo)

	blob, err := f.accounts.cred.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(tokenBlob("acct-a")), string(blob))
}

func TestPolicyLeavesFrozenAccountsAlone(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)
	ctx := context.Background()

	f.accounts.seed(t, domain.AccountsStore{
		ActiveAccountID: "a",
		Accounts: []domain.ManagedAccount{
			seedAccount("a", domain.BucketActive),
			seedAccount("f", domain.BucketFrozen),
		},
	})
	f.fetcher.byID["acct-a"] = availableCredits(60)
	f.fetcher.byID["acct-f"] = availableCredits(90)

	_, err := f.service.Apply(ctx)
	require.NoError(t, err)

	// Frozen accounts are never fetched or moved.
	assert.Zero(t, f.fetcher.fetches["acct-f"])

	store, err := f.accounts.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BucketFrozen, store.Account("f").Bucket)
}

func TestPolicyUnknownUsageIsNotDepleted(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)
	ctx := context.Background()

	f.accounts.seed(t, domain.AccountsStore{
		ActiveAccountID: "a",
		Accounts: []domain.ManagedAccount{
			seedAccount("a", domain.BucketActive),
		},
	})
	// No usage registered for acct-a: the fetch reports unavailable.

	report, err := f.service.Apply(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Archived)

	store, err := f.accounts.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BucketActive, store.Account("a").Bucket)
}

func TestPolicyPassInFlightIsSkipped(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t)

	f.service.mu.Lock()
	defer f.service.mu.Unlock()

	report, err := f.service.Apply(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
}
