package usage

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"codex-account-manager/internal/domain"
)

// Upstream payloads have shipped the same semantic fields under many names.
// Each table is an ordered list of keys tried in sequence; the first
// successful parse wins.
var (
	rateLimitKeys = []string{"rate_limit", "rateLimit"}

	windowKeys = []string{
		"primary_window",
		"secondary_window",
		"primaryWindow",
		"secondaryWindow",
	}

	usedPercentKeys   = []string{"used_percent", "usedPercent"}
	windowSecondsKeys = []string{"limit_window_seconds", "limitWindowSeconds"}

	resetAtKeys = []string{
		"next_reset_at", "nextResetAt",
		"reset_at", "resetAt",
		"resets_at", "resetsAt",
		"window_reset_at", "windowResetAt",
		"next_refresh_at", "nextRefreshAt",
		"refresh_at", "refreshAt",
	}

	secondsUntilResetKeys = []string{
		"seconds_until_reset", "secondsUntilReset",
		"reset_in_seconds", "resetInSeconds",
		"time_until_reset_seconds", "timeUntilResetSeconds",
		"window_remaining_seconds",
	}

	additionalRateLimitKeys = []string{"additional_rate_limits", "additionalRateLimits"}
)

// collectWindows gathers every rate-limit window in the payload: the primary
// and secondary windows plus any entries in the additional list.
func collectWindows(payload gjson.Result, checkedAt int64) []domain.RateLimitWindow {
	windows := make([]domain.RateLimitWindow, 0, 8)
	windows = append(windows, parseRateLimitWindows(firstResult(payload, rateLimitKeys), checkedAt)...)

	additional := firstResult(payload, additionalRateLimitKeys)
	if !additional.IsArray() {
		return windows
	}
	additional.ForEach(func(_, entry gjson.Result) bool {
		windows = append(windows, parseRateLimitWindows(firstResult(entry, rateLimitKeys), checkedAt)...)
		return true
	})

	return windows
}

func parseRateLimitWindows(rateLimit gjson.Result, checkedAt int64) []domain.RateLimitWindow {
	if !rateLimit.IsObject() {
		return nil
	}

	windows := make([]domain.RateLimitWindow, 0, len(windowKeys))
	for _, key := range windowKeys {
		window := rateLimit.Get(key)
		if !window.IsObject() {
			continue
		}

		usedPercent := numberAt(window, usedPercentKeys)
		windowSeconds := numberAt(window, windowSecondsKeys)
		if usedPercent == nil || windowSeconds == nil {
			continue
		}

		windows = append(windows, domain.RateLimitWindow{
			UsedPercent:   domain.ClampPercent(*usedPercent),
			WindowSeconds: *windowSeconds,
			RefreshAt:     windowRefreshAt(window, checkedAt),
		})
	}

	return windows
}

// windowRefreshAt resolves a window's reset time: an explicit timestamp under
// any known alias, else checkedAt plus a "seconds until reset" style field.
func windowRefreshAt(window gjson.Result, checkedAt int64) *int64 {
	for _, key := range resetAtKeys {
		if at := epochSeconds(window.Get(key)); at != nil {
			return at
		}
	}

	resetIn := numberAt(window, secondsUntilResetKeys)
	if resetIn == nil || *resetIn < 0 {
		return nil
	}
	at := checkedAt + int64(*resetIn)
	return &at
}

// primaryUsedPercent reads the primary window's used percent, the figure the
// percent-fallback mode is built from.
func primaryUsedPercent(payload gjson.Result) *float64 {
	rateLimit := firstResult(payload, rateLimitKeys)
	if !rateLimit.IsObject() {
		return nil
	}
	primary := firstResult(rateLimit, []string{"primary_window", "primaryWindow"})
	if !primary.IsObject() {
		return nil
	}
	return numberAt(primary, usedPercentKeys)
}

func firstResult(parent gjson.Result, keys []string) gjson.Result {
	for _, key := range keys {
		if value := parent.Get(key); value.Exists() {
			return value
		}
	}
	return gjson.Result{}
}

func numberAt(parent gjson.Result, keys []string) *float64 {
	for _, key := range keys {
		if value := asNumber(parent.Get(key)); value != nil {
			return value
		}
	}
	return nil
}

func asNumber(value gjson.Result) *float64 {
	switch value.Type {
	case gjson.Number:
		parsed := value.Float()
		return &parsed
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value.String()), 64)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

func asBool(value gjson.Result) *bool {
	switch value.Type {
	case gjson.True, gjson.False:
		parsed := value.Bool()
		return &parsed
	case gjson.Number:
		switch value.Float() {
		case 1:
			parsed := true
			return &parsed
		case 0:
			parsed := false
			return &parsed
		}
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(value.String())) {
		case "true", "1":
			parsed := true
			return &parsed
		case "false", "0":
			parsed := false
			return &parsed
		}
	}
	return nil
}

// epochSeconds accepts epoch seconds, epoch milliseconds, or an ISO string.
func epochSeconds(value gjson.Result) *int64 {
	if number := asNumber(value); number != nil {
		at := int64(*number)
		if *number > 1_000_000_000_000 {
			at = int64(*number / 1000)
		}
		return &at
	}

	if value.Type == gjson.String {
		trimmed := strings.TrimSpace(value.String())
		if trimmed == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return nil
		}
		at := parsed.Unix()
		return &at
	}

	return nil
}
