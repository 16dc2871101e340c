package accounts

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"codex-account-manager/internal/application"
	"codex-account-manager/internal/domain"
)

func sampleView() application.AccountsView {
	return application.AccountsView{
		Accounts: []application.AccountSummary{
			{ID: "a", Label: "work", Email: "a@example.com", Bucket: domain.BucketActive, IsActive: true},
			{ID: "b", Email: "b@example.com", Bucket: domain.BucketActive},
			{ID: "c", Bucket: domain.BucketDepleted},
		},
		ActiveAccountID: "a",
		CodexAuthExists: true,
		CodexAuthPath:   "/home/u/.codex/auth.json",
		StorePath:       "/home/u/.codex-manager/accounts.json",
	}
}

func TestRenderGroupsByBucket(t *testing.T) {
	t.Parallel()

	out := Render(sampleView(), RenderOptions{Now: time.Unix(1_700_000_000, 0)})

	assert.Contains(t, out, "Codex Accounts")
	assert.Contains(t, out, "Active")
	assert.Contains(t, out, "Archived")
	assert.NotContains(t, out, "Frozen")
	assert.Contains(t, out, "work <a@example.com>")
	assert.Contains(t, out, "b@example.com")
	assert.Contains(t, out, "* ")

	// Groups come out in bucket order regardless of store order.
	assert.Less(t, strings.Index(out, "Active"), strings.Index(out, "Archived"))
}

func TestRenderMissingCredentialWarning(t *testing.T) {
	t.Parallel()

	view := sampleView()
	view.CodexAuthExists = false

	out := Render(view, RenderOptions{})
	assert.Contains(t, out, "No credential file at")
}

func TestRenderEmptyView(t *testing.T) {
	t.Parallel()

	out := Render(application.AccountsView{CodexAuthExists: true}, RenderOptions{})
	assert.Contains(t, out, "No managed accounts")
}

func TestRenderInlineUsage(t *testing.T) {
	t.Parallel()

	available := 25.0
	total := 100.0
	view := sampleView()
	usage := map[domain.AccountID]domain.CreditsInfo{
		"a": {
			Available: &available,
			Total:     &total,
			Mode:      domain.ModeBalance,
			Status:    domain.CreditsAvailable,
			CheckedAt: 1_700_000_000,
		},
	}

	out := Render(view, RenderOptions{Now: time.Unix(1_700_000_000, 0), Usage: usage})
	assert.Contains(t, out, "25% left")
	assert.Contains(t, out, "credits: 25.00")
}

func TestRenderCreditsUnavailable(t *testing.T) {
	t.Parallel()

	out := RenderCredits(domain.CreditsInfo{
		Status:  domain.CreditsUnavailable,
		Message: "no usage data",
	}, time.Unix(1_700_000_000, 0))

	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, "no usage data")
}

func TestProgressBarWidth(t *testing.T) {
	t.Parallel()

	s := newStyles()

	bar := renderProgressBar(75, 24, s)
	assert.Contains(t, bar, strings.Repeat("=", 6))
	assert.Contains(t, bar, strings.Repeat("-", 18))

	assert.Empty(t, renderProgressBar(10, 0, s))
}

func TestRefreshSuffix(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	hourly := now.Unix() + 1800

	suffix := refreshSuffix(domain.CreditsInfo{HourlyRefreshAt: &hourly}, now)
	assert.Contains(t, suffix, "resets in 1h")

	weekly := now.Unix() + 3*86400
	suffix = refreshSuffix(domain.CreditsInfo{WeeklyRefreshAt: &weekly}, now)
	assert.Contains(t, suffix, "resets in 3d")

	past := now.Unix() - 100
	suffix = refreshSuffix(domain.CreditsInfo{HourlyRefreshAt: &past}, now)
	assert.Equal(t, "(reset now)", suffix)

	assert.Empty(t, refreshSuffix(domain.CreditsInfo{}, now))
}
