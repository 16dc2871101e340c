// Package accounts renders the accounts view and per-account usage for the
// terminal.
package accounts

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"codex-account-manager/internal/application"
	"codex-account-manager/internal/domain"
)

type RenderOptions struct {
	Now   time.Time
	Usage map[domain.AccountID]domain.CreditsInfo
}

// Render produces the full accounts listing grouped by bucket, with the
// cached usage snapshot inline when one exists.
func Render(view application.AccountsView, opts RenderOptions) string {
	s := newStyles()

	lines := []string{
		s.title.Render("Codex Accounts"),
		s.header.Render(fmt.Sprintf("accounts: %d  store: %s", len(view.Accounts), view.StorePath)),
	}

	if !view.CodexAuthExists {
		lines = append(lines, s.warning.Render(fmt.Sprintf("No credential file at %s", view.CodexAuthPath)))
	}

	if len(view.Accounts) == 0 {
		lines = append(lines, s.empty.Render("No managed accounts. Run `cam import` or `cam login browser`."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, bucket := range []domain.Bucket{domain.BucketActive, domain.BucketDepleted, domain.BucketFrozen} {
		section := renderBucket(view, bucket, opts, s)
		if section != "" {
			lines = append(lines, s.section.Render(section))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderCredits formats one usage snapshot on its own, for `cam usage`.
func RenderCredits(credits domain.CreditsInfo, now time.Time) string {
	s := newStyles()
	body := creditsLines(credits, now, s)
	return lipgloss.JoinVertical(lipgloss.Left, body...)
}

func renderBucket(view application.AccountsView, bucket domain.Bucket, opts RenderOptions, s styles) string {
	var parts []string
	for _, summary := range view.Accounts {
		if summary.Bucket != bucket {
			continue
		}
		parts = append(parts, renderAccount(summary, opts, s))
	}
	if len(parts) == 0 {
		return ""
	}

	header := s.bucket.Render(bucketLabel(bucket))
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{header}, parts...)...)
}

func renderAccount(summary application.AccountSummary, opts RenderOptions, s styles) string {
	title := accountTitle(summary)
	if summary.IsActive {
		title = s.activeMark.Render("* ") + s.account.Render(title)
	} else {
		title = "  " + s.account.Render(title)
	}

	parts := []string{title}
	if credits, ok := opts.Usage[domain.AccountID(summary.ID)]; ok {
		for _, line := range creditsLines(credits, opts.Now, s) {
			parts = append(parts, "    "+line)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func creditsLines(credits domain.CreditsInfo, now time.Time, s styles) []string {
	switch credits.Status {
	case domain.CreditsAvailable:
	case domain.CreditsUnavailable:
		return []string{s.empty.Render("usage: unavailable: " + credits.Message)}
	default:
		return []string{s.warning.Render("usage: " + credits.Message)}
	}

	var lines []string
	if remaining := credits.RemainingPercent(); remaining != nil {
		bar := renderProgressBar(100-*remaining, 24, s)
		lines = append(lines, lipgloss.JoinHorizontal(
			lipgloss.Top,
			bar,
			" ",
			s.detail.Render(fmt.Sprintf("%2.0f%% left", *remaining)),
			" ",
			s.meta.Render(refreshSuffix(credits, now)),
		))
	}

	if credits.Mode == domain.ModeBalance || credits.Mode == domain.ModeLegacy {
		if credits.Available != nil {
			lines = append(lines, s.detail.Render(fmt.Sprintf("credits: %.2f %s remaining", *credits.Available, credits.Unit)))
		}
	}

	if len(lines) == 0 {
		lines = append(lines, s.detail.Render(credits.Message))
	}

	return lines
}

func refreshSuffix(credits domain.CreditsInfo, now time.Time) string {
	var nowUnix int64
	if !now.IsZero() {
		nowUnix = now.Unix()
	}

	refreshAt := credits.NextRefreshAt(nowUnix)
	if refreshAt == nil {
		return ""
	}

	at := time.Unix(*refreshAt, 0)
	if now.IsZero() {
		return "(resets " + at.Format("15:04 on 02 Jan") + ")"
	}
	if at.Before(now) {
		return "(reset now)"
	}

	remaining := at.Sub(now)
	if remaining < 24*time.Hour {
		hours := int(math.Ceil(remaining.Hours()))
		if hours < 1 {
			hours = 1
		}
		return fmt.Sprintf("(resets in %dh, %s)", hours, at.Format("15:04"))
	}

	days := int(math.Ceil(remaining.Hours() / 24))
	return fmt.Sprintf("(resets in %dd, %s)", days, at.Format("15:04 on 02 Jan"))
}

func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := domain.ClampPercent(usedPercent)
	leftFraction := (100.0 - used) / 100.0
	filled := int(math.Round(float64(width) * leftFraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func accountTitle(summary application.AccountSummary) string {
	name := strings.TrimSpace(summary.Label)
	if name == "" {
		name = strings.TrimSpace(summary.Email)
	}
	if name == "" {
		name = summary.ID
	}

	if summary.Email != "" && name != summary.Email {
		return fmt.Sprintf("%s <%s>", name, summary.Email)
	}
	return name
}

func bucketLabel(bucket domain.Bucket) string {
	switch bucket {
	case domain.BucketActive:
		return "Active"
	case domain.BucketDepleted:
		return "Archived"
	case domain.BucketFrozen:
		return "Frozen"
	default:
		return string(bucket)
	}
}
