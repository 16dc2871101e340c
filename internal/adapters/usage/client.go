// Package usage normalizes the heterogeneous upstream usage and billing API
// shapes into the one domain.CreditsInfo model. The client never returns a Go
// error: every failure is folded into the snapshot's Status and Message so a
// fan-out refresh across accounts keeps going when one of them breaks.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"codex-account-manager/internal/adapters/authblob"
	"codex-account-manager/internal/domain"
	"codex-account-manager/internal/ports"
)

const maxResponseBytes = 1 << 20

var legacyCreditEndpoints = []string{
	"https://api.openai.com/dashboard/billing/credit_grants",
	"https://api.openai.com/v1/dashboard/billing/credit_grants",
}

type Client struct {
	httpClient      *http.Client
	baseURL         string
	legacyEndpoints []string
	clock           ports.Clock
	logger          zerolog.Logger
}

func NewClient(httpClient *http.Client, baseURL string, clock ports.Clock, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Client{
		httpClient:      httpClient,
		baseURL:         strings.TrimRight(baseURL, "/"),
		legacyEndpoints: legacyCreditEndpoints,
		clock:           clock,
		logger:          logger,
	}
}

// FetchCredits resolves the freshest quota snapshot for a credential blob.
// Token-bearing accounts hit the usage endpoint; API-key-only accounts fall
// back to the legacy credit-grants endpoint.
func (c *Client) FetchCredits(ctx context.Context, auth json.RawMessage) domain.CreditsInfo {
	checkedAt := c.clock.Now().Unix()

	if accessToken := authblob.AccessToken(auth); accessToken != "" {
		return c.fetchWhamCredits(ctx, accessToken, authblob.AccountID(auth), checkedAt)
	}

	if apiKey := authblob.APIKey(auth); apiKey != "" {
		return c.fetchLegacyCredits(ctx, apiKey, checkedAt)
	}

	info := whamInfo(checkedAt)
	info.Status = domain.CreditsUnavailable
	info.Message = "No access token available for this account."
	return info
}

func (c *Client) fetchWhamCredits(ctx context.Context, accessToken, accountID string, checkedAt int64) domain.CreditsInfo {
	endpoint := c.baseURL + "/wham/usage"
	info := whamInfo(checkedAt)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		info.Status = domain.CreditsError
		info.Message = fmt.Sprintf("Failed to fetch usage from %s: %v", endpoint, err)
		return info
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	request.Header.Set("User-Agent", "codex-cli")
	if accountID != "" {
		request.Header.Set("ChatGPT-Account-Id", accountID)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		info.Status = domain.CreditsError
		info.Message = fmt.Sprintf("Failed to fetch usage from %s: %v", endpoint, err)
		return info
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		info.Status = domain.CreditsError
		info.Message = fmt.Sprintf("Failed to fetch usage from %s: %v", endpoint, err)
		return info
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		detail := strings.TrimSpace(string(body))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		if detail != "" {
			detail = " Body: " + detail
		}
		info.Status = domain.CreditsError
		info.Message = fmt.Sprintf("Usage endpoint %s returned %d.%s", endpoint, response.StatusCode, detail)
		return info
	}

	if !gjson.ValidBytes(body) {
		info.Status = domain.CreditsError
		info.Message = fmt.Sprintf("Usage endpoint %s returned invalid JSON.", endpoint)
		return info
	}

	payload := gjson.ParseBytes(body)
	c.logger.Debug().Str("endpoint", endpoint).Msg("usage payload received")
	return normalizeWhamPayload(payload, info)
}

func normalizeWhamPayload(payload gjson.Result, info domain.CreditsInfo) domain.CreditsInfo {
	checkedAt := info.CheckedAt
	balance := numberAt(payload, []string{"credits.balance"})
	hasCredits := asBool(payload.Get("credits.has_credits"))
	unlimited := asBool(payload.Get("credits.unlimited"))
	usedPercent := primaryUsedPercent(payload)

	planType := strings.TrimSpace(payload.Get("plan_type").String())
	isPaid := planType != "" && strings.ToLower(planType) != "free"

	windows := collectWindows(payload, checkedAt)
	weekly := domain.PickWeeklyWindow(windows)
	hourly := domain.PickHourlyWindow(windows, weekly)

	info.PlanType = planType
	info.IsPaid = isPaid
	if hourly != nil {
		info.HourlyRefreshAt = hourly.RefreshAtOrEstimate(checkedAt)
		if isPaid {
			remaining := hourly.RemainingPercent()
			info.HourlyRemainingPercent = &remaining
		}
	}
	if weekly != nil {
		info.WeeklyRefreshAt = weekly.RefreshAtOrEstimate(checkedAt)
		if isPaid {
			remaining := weekly.RemainingPercent()
			info.WeeklyRemainingPercent = &remaining
		}
	}

	if balance != nil {
		info.Available = balance
		info.Status = domain.CreditsAvailable
		info.Message = "Remaining credits loaded from Codex usage endpoint."
		return info
	}

	if usedPercent != nil {
		used := domain.ClampPercent(*usedPercent)
		available := 100 - used
		total := float64(100)
		info.Available = &available
		info.Used = &used
		info.Total = &total
		info.Currency = "%"
		info.Unit = "%"
		info.Mode = domain.ModePercentFallback
		info.Status = domain.CreditsAvailable
		info.Message = "Usage fallback loaded from rate-limit percent."
		return info
	}

	info.Status = domain.CreditsError
	info.Message = fmt.Sprintf(
		"Usage endpoint returned no balance or rate-limit usage data (has_credits=%s, unlimited=%s).",
		renderFlag(hasCredits), renderFlag(unlimited),
	)
	return info
}

func (c *Client) fetchLegacyCredits(ctx context.Context, apiKey string, checkedAt int64) domain.CreditsInfo {
	info := legacyInfo(checkedAt)
	lastError := "No usable billing payload returned."

	for _, endpoint := range c.legacyEndpoints {
		payload, failure := c.fetchLegacyPayload(ctx, endpoint, apiKey)
		if failure != "" {
			lastError = failure
			continue
		}

		available := numberAt(payload, []string{"total_available", "credit_summary.total_available"})
		used := numberAt(payload, []string{"total_used", "credit_summary.total_used"})
		total := numberAt(payload, []string{"total_granted", "credit_summary.total_granted"})
		if available == nil && used == nil && total == nil {
			lastError = fmt.Sprintf("Credit endpoint %s returned an unexpected payload shape.", endpoint)
			continue
		}

		info.Available = available
		info.Used = used
		info.Total = total
		info.Status = domain.CreditsAvailable
		info.Message = "Remaining credits loaded from billing endpoint."
		return info
	}

	info.Status = domain.CreditsError
	info.Message = lastError
	return info
}

func (c *Client) fetchLegacyPayload(ctx context.Context, endpoint, apiKey string) (gjson.Result, string) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Sprintf("Failed to fetch credits from %s: %v", endpoint, err)
	}
	request.Header.Set("Authorization", "Bearer "+apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return gjson.Result{}, fmt.Sprintf("Failed to fetch credits from %s: %v", endpoint, err)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Sprintf("Failed to fetch credits from %s: %v", endpoint, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return gjson.Result{}, fmt.Sprintf("Credit endpoint %s returned %d.", endpoint, response.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Sprintf("Credit endpoint %s returned invalid JSON.", endpoint)
	}

	return gjson.ParseBytes(body), ""
}

func whamInfo(checkedAt int64) domain.CreditsInfo {
	return domain.CreditsInfo{
		Currency:  "USD",
		Source:    domain.SourceWhamUsage,
		Mode:      domain.ModeBalance,
		Unit:      "USD",
		CheckedAt: checkedAt,
	}
}

func legacyInfo(checkedAt int64) domain.CreditsInfo {
	return domain.CreditsInfo{
		Currency:  "USD",
		Source:    domain.SourceLegacyCreditGrants,
		Mode:      domain.ModeLegacy,
		Unit:      "USD",
		CheckedAt: checkedAt,
	}
}

func renderFlag(value *bool) string {
	if value == nil {
		return "unknown"
	}
	if *value {
		return "true"
	}
	return "false"
}
