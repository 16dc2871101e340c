// Package application wires the domain to the adapters: account store
// operations and the view builder, the login state machine, usage fetching
// with caching, and the quota policy loop.
package application

import "codex-account-manager/internal/domain"

// AccountSummary is one row of the accounts view. Auth payloads never leave
// the service layer; the summary carries identity and bookkeeping only.
type AccountSummary struct {
	ID               string        `json:"id"`
	Label            string        `json:"label,omitempty"`
	ChatGPTAccountID string        `json:"accountId,omitempty"`
	Email            string        `json:"email,omitempty"`
	Bucket           domain.Bucket `json:"bucket"`
	IsActive         bool          `json:"isActive"`
	CreatedAt        int64         `json:"createdAt"`
	UpdatedAt        int64         `json:"updatedAt"`
	LastUsedAt       int64         `json:"lastUsedAt,omitempty"`
}

// AccountsView is the reconciled state handed to every surface: the summaries
// in store order, the active reference after disk reconciliation, and where
// the backing files live.
type AccountsView struct {
	Accounts            []AccountSummary `json:"accounts"`
	ActiveAccountID     string           `json:"activeAccountId,omitempty"`
	ActiveDiskAccountID string           `json:"activeDiskAccountId,omitempty"`
	CodexAuthExists     bool             `json:"codexAuthExists"`
	CodexAuthPath       string           `json:"codexAuthPath"`
	StorePath           string           `json:"storePath"`
}

type LoginResult struct {
	View    AccountsView `json:"view"`
	Message string       `json:"message"`
}

type BrowserLoginStart struct {
	AuthURL     string `json:"authUrl"`
	RedirectURI string `json:"redirectUri"`
}

func summarize(store domain.AccountsStore) []AccountSummary {
	summaries := make([]AccountSummary, 0, len(store.Accounts))
	for _, account := range store.Accounts {
		summaries = append(summaries, AccountSummary{
			ID:               string(account.ID),
			Label:            account.Label,
			ChatGPTAccountID: account.ChatGPTAccountID,
			Email:            account.Email,
			Bucket:           account.Bucket,
			IsActive:         account.ID == store.ActiveAccountID && store.ActiveAccountID != "",
			CreatedAt:        account.CreatedAt,
			UpdatedAt:        account.UpdatedAt,
			LastUsedAt:       account.LastUsedAt,
		})
	}
	return summaries
}
