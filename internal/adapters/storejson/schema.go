package storejson

import (
	"encoding/json"

	"codex-account-manager/internal/domain"
)

// The on-disk documents keep the original camelCase layout, including the
// archived/frozen boolean pair. The Bucket enum exists only in memory; the
// translation happens here and nowhere else.

type storeSchema struct {
	ActiveAccountID *string         `json:"activeAccountId"`
	Accounts        []accountSchema `json:"accounts"`
}

type accountSchema struct {
	ID         string          `json:"id"`
	Label      *string         `json:"label"`
	AccountID  *string         `json:"accountId"`
	Email      *string         `json:"email"`
	Archived   bool            `json:"archived"`
	Frozen     bool            `json:"frozen"`
	Auth       json.RawMessage `json:"auth"`
	CreatedAt  int64           `json:"createdAt"`
	UpdatedAt  int64           `json:"updatedAt"`
	LastUsedAt *int64          `json:"lastUsedAt"`
}

type stateSchema struct {
	Theme                      *string                      `json:"theme"`
	AutoArchiveZeroQuota       *bool                        `json:"autoArchiveZeroQuota"`
	AutoUnarchiveNonZeroQuota  *bool                        `json:"autoUnarchiveNonZeroQuota"`
	AutoSwitchAwayFromArchived *bool                        `json:"autoSwitchAwayFromArchived"`
	AutoRefreshActiveEnabled   bool                         `json:"autoRefreshActiveEnabled"`
	AutoRefreshIntervalSec     int                          `json:"autoRefreshActiveIntervalSec"`
	UsageRefreshDisplayMode    string                       `json:"usageRefreshDisplayMode"`
	UsageByID                  map[string]creditsInfoSchema `json:"usageById"`
	SavedAt                    int64                        `json:"savedAt"`
}

type creditsInfoSchema struct {
	Available              *float64 `json:"available"`
	Used                   *float64 `json:"used"`
	Total                  *float64 `json:"total"`
	Currency               string   `json:"currency"`
	Source                 string   `json:"source"`
	Mode                   string   `json:"mode"`
	Unit                   string   `json:"unit"`
	PlanType               *string  `json:"planType"`
	IsPaidPlan             bool     `json:"isPaidPlan"`
	HourlyRemainingPercent *float64 `json:"hourlyRemainingPercent"`
	WeeklyRemainingPercent *float64 `json:"weeklyRemainingPercent"`
	HourlyRefreshAt        *int64   `json:"hourlyRefreshAt"`
	WeeklyRefreshAt        *int64   `json:"weeklyRefreshAt"`
	Status                 string   `json:"status"`
	Message                string   `json:"message"`
	CheckedAt              int64    `json:"checkedAt"`
}

func toStoreSchema(store domain.AccountsStore) storeSchema {
	accounts := make([]accountSchema, 0, len(store.Accounts))
	for _, account := range store.Accounts {
		accounts = append(accounts, toAccountSchema(account))
	}

	return storeSchema{
		ActiveAccountID: optionalString(string(store.ActiveAccountID)),
		Accounts:        accounts,
	}
}

func toAccountSchema(account domain.ManagedAccount) accountSchema {
	archived, frozen := account.Bucket.Flags()

	var lastUsedAt *int64
	if account.LastUsedAt > 0 {
		value := account.LastUsedAt
		lastUsedAt = &value
	}

	return accountSchema{
		ID:         string(account.ID),
		Label:      optionalString(account.Label),
		AccountID:  optionalString(account.ChatGPTAccountID),
		Email:      optionalString(account.Email),
		Archived:   archived,
		Frozen:     frozen,
		Auth:       account.Auth,
		CreatedAt:  account.CreatedAt,
		UpdatedAt:  account.UpdatedAt,
		LastUsedAt: lastUsedAt,
	}
}

// fromStoreSchema rebuilds the domain store, dropping entries without an id
// and nulling an active reference that no longer points at an active-bucket
// account.
func fromStoreSchema(schema storeSchema, fallbackNow int64) domain.AccountsStore {
	store := domain.AccountsStore{
		Accounts: make([]domain.ManagedAccount, 0, len(schema.Accounts)),
	}

	for _, entry := range schema.Accounts {
		if entry.ID == "" {
			continue
		}

		createdAt := entry.CreatedAt
		if createdAt == 0 {
			createdAt = fallbackNow
		}
		updatedAt := entry.UpdatedAt
		if updatedAt == 0 {
			updatedAt = createdAt
		}

		var lastUsedAt int64
		if entry.LastUsedAt != nil {
			lastUsedAt = *entry.LastUsedAt
		}

		store.Accounts = append(store.Accounts, domain.ManagedAccount{
			ID:               domain.AccountID(entry.ID),
			Label:            stringValue(entry.Label),
			ChatGPTAccountID: stringValue(entry.AccountID),
			Email:            stringValue(entry.Email),
			Bucket:           domain.BucketFromFlags(entry.Archived, entry.Frozen),
			Auth:             entry.Auth,
			CreatedAt:        createdAt,
			UpdatedAt:        updatedAt,
			LastUsedAt:       lastUsedAt,
		})
	}

	if schema.ActiveAccountID != nil {
		store.ActiveAccountID = domain.AccountID(*schema.ActiveAccountID)
	}
	store.Normalize()

	return store
}

func toStateSchema(state domain.BootstrapState) stateSchema {
	usage := make(map[string]creditsInfoSchema, len(state.UsageByID))
	for id, credits := range state.UsageByID {
		usage[string(id)] = toCreditsSchema(credits)
	}

	autoArchive := state.AutoArchiveZeroQuota
	autoUnarchive := state.AutoUnarchiveNonZeroQuota
	autoSwitch := state.AutoSwitchAwayFromArchived
	return stateSchema{
		Theme:                      optionalString(state.Theme),
		AutoArchiveZeroQuota:       &autoArchive,
		AutoUnarchiveNonZeroQuota:  &autoUnarchive,
		AutoSwitchAwayFromArchived: &autoSwitch,
		AutoRefreshActiveEnabled:   state.AutoRefreshActiveEnabled,
		AutoRefreshIntervalSec:     state.AutoRefreshIntervalSec,
		UsageRefreshDisplayMode:    state.UsageRefreshDisplayMode,
		UsageByID:                  usage,
		SavedAt:                    state.SavedAt,
	}
}

func fromStateSchema(schema stateSchema, fallbackNow int64) domain.BootstrapState {
	state := domain.DefaultBootstrapState()

	if schema.Theme != nil && (*schema.Theme == "light" || *schema.Theme == "dark") {
		state.Theme = *schema.Theme
	}
	if schema.AutoArchiveZeroQuota != nil {
		state.AutoArchiveZeroQuota = *schema.AutoArchiveZeroQuota
	}
	if schema.AutoUnarchiveNonZeroQuota != nil {
		state.AutoUnarchiveNonZeroQuota = *schema.AutoUnarchiveNonZeroQuota
	}
	if schema.AutoSwitchAwayFromArchived != nil {
		state.AutoSwitchAwayFromArchived = *schema.AutoSwitchAwayFromArchived
	}
	state.AutoRefreshActiveEnabled = schema.AutoRefreshActiveEnabled
	state.AutoRefreshIntervalSec = domain.ClampAutoRefreshInterval(schema.AutoRefreshIntervalSec)
	if schema.UsageRefreshDisplayMode == "remaining" {
		state.UsageRefreshDisplayMode = "remaining"
	}
	if schema.SavedAt > 0 {
		state.SavedAt = schema.SavedAt
	} else {
		state.SavedAt = fallbackNow
	}

	for id, credits := range schema.UsageByID {
		if id == "" {
			continue
		}
		state.UsageByID[domain.AccountID(id)] = fromCreditsSchema(credits)
	}

	return state
}

func toCreditsSchema(credits domain.CreditsInfo) creditsInfoSchema {
	return creditsInfoSchema{
		Available:              credits.Available,
		Used:                   credits.Used,
		Total:                  credits.Total,
		Currency:               credits.Currency,
		Source:                 string(credits.Source),
		Mode:                   string(credits.Mode),
		Unit:                   credits.Unit,
		PlanType:               optionalString(credits.PlanType),
		IsPaidPlan:             credits.IsPaid,
		HourlyRemainingPercent: credits.HourlyRemainingPercent,
		WeeklyRemainingPercent: credits.WeeklyRemainingPercent,
		HourlyRefreshAt:        credits.HourlyRefreshAt,
		WeeklyRefreshAt:        credits.WeeklyRefreshAt,
		Status:                 string(credits.Status),
		Message:                credits.Message,
		CheckedAt:              credits.CheckedAt,
	}
}

func fromCreditsSchema(schema creditsInfoSchema) domain.CreditsInfo {
	return domain.CreditsInfo{
		Available:              schema.Available,
		Used:                   schema.Used,
		Total:                  schema.Total,
		Currency:               schema.Currency,
		Source:                 domain.CreditsSource(schema.Source),
		Mode:                   domain.CreditsMode(schema.Mode),
		Unit:                   schema.Unit,
		PlanType:               stringValue(schema.PlanType),
		IsPaid:                 schema.IsPaidPlan,
		HourlyRemainingPercent: schema.HourlyRemainingPercent,
		WeeklyRemainingPercent: schema.WeeklyRemainingPercent,
		HourlyRefreshAt:        schema.HourlyRefreshAt,
		WeeklyRefreshAt:        schema.WeeklyRefreshAt,
		Status:                 domain.CreditsStatus(schema.Status),
		Message:                schema.Message,
		CheckedAt:              schema.CheckedAt,
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
