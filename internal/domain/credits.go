package domain

import "sort"

// QuotaEpsilon is the threshold below which remaining quota counts as zero.
const QuotaEpsilon = 0.0001

type CreditsStatus string

const (
	CreditsAvailable   CreditsStatus = "available"
	CreditsUnavailable CreditsStatus = "unavailable"
	CreditsError       CreditsStatus = "error"
)

type CreditsMode string

const (
	ModeBalance         CreditsMode = "balance"
	ModePercentFallback CreditsMode = "percent_fallback"
	ModeLegacy          CreditsMode = "legacy"
)

type CreditsSource string

const (
	SourceWhamUsage          CreditsSource = "wham_usage"
	SourceLegacyCreditGrants CreditsSource = "legacy_credit_grants"
)

// CreditsInfo is the normalized quota snapshot for one account. It is created
// fresh on every refresh and never mutated in place. Fetch failures are
// represented as Status/Message, never as a Go error, so a single bad account
// cannot abort a fan-out refresh.
type CreditsInfo struct {
	Available *float64
	Used      *float64
	Total     *float64
	Currency  string
	Source    CreditsSource
	Mode      CreditsMode
	Unit      string
	PlanType  string
	IsPaid    bool

	HourlyRemainingPercent *float64
	WeeklyRemainingPercent *float64
	HourlyRefreshAt        *int64
	WeeklyRefreshAt        *int64

	Status    CreditsStatus
	Message   string
	CheckedAt int64
}

// PercentFromBalance converts the balance figures into a 0..100 percentage for
// plans without rate-limit windows. A balance with no known total reads as
// fully available.
func (c CreditsInfo) PercentFromBalance() float64 {
	if c.Mode == ModeBalance && c.Available != nil && c.Total == nil {
		return 100
	}
	if c.Available == nil || c.Total == nil || *c.Total <= 0 {
		return 0
	}
	return ClampPercent(*c.Available / *c.Total * 100)
}

// RemainingPercent derives the effective remaining quota: the minimum of the
// known rate-limit windows for paid plans, the balance percentage otherwise.
// Returns nil when the snapshot carries no usable figure.
func (c CreditsInfo) RemainingPercent() *float64 {
	if c.Status != CreditsAvailable {
		return nil
	}

	if c.IsPaid {
		var minimum *float64
		for _, window := range []*float64{c.WeeklyRemainingPercent, c.HourlyRemainingPercent} {
			if window == nil {
				continue
			}
			if minimum == nil || *window < *minimum {
				minimum = window
			}
		}
		if minimum == nil {
			return nil
		}
		value := *minimum
		return &value
	}

	value := c.PercentFromBalance()
	return &value
}

func (c CreditsInfo) ZeroQuotaRemaining() bool {
	remaining := c.RemainingPercent()
	return remaining != nil && *remaining <= QuotaEpsilon
}

func (c CreditsInfo) NonZeroQuotaRemaining() bool {
	remaining := c.RemainingPercent()
	return remaining != nil && *remaining > QuotaEpsilon
}

// NextRefreshAt picks the single refresh timestamp the UI schedules against:
// the earliest future window refresh, else the earliest known one, else a
// synthesized hourly/weekly horizon for windows whose percent is known but
// whose reset time is not. The synthesis keeps older cached snapshots usable.
func (c CreditsInfo) NextRefreshAt(now int64) *int64 {
	known := make([]int64, 0, 2)
	if c.HourlyRefreshAt != nil {
		known = append(known, *c.HourlyRefreshAt)
	}
	if c.WeeklyRefreshAt != nil {
		known = append(known, *c.WeeklyRefreshAt)
	}

	future := make([]int64, 0, len(known))
	for _, at := range known {
		if at > now {
			future = append(future, at)
		}
	}

	if pick, ok := earliest(future); ok {
		return &pick
	}
	if pick, ok := earliest(known); ok {
		return &pick
	}

	if c.HourlyRemainingPercent != nil {
		at := c.CheckedAt + 3600
		return &at
	}
	if c.WeeklyRemainingPercent != nil {
		at := c.CheckedAt + 7*86400
		return &at
	}

	return nil
}

func earliest(values []int64) (int64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	pick := values[0]
	for _, value := range values[1:] {
		if value < pick {
			pick = value
		}
	}
	return pick, true
}

func ClampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// RateLimitWindow is one upstream-reported quota period.
type RateLimitWindow struct {
	UsedPercent   float64
	WindowSeconds float64
	RefreshAt     *int64
}

func (w RateLimitWindow) RemainingPercent() float64 {
	return ClampPercent(100 - w.UsedPercent)
}

// RefreshAtOrEstimate returns the window's explicit reset time, falling back
// to checkedAt plus the window length.
func (w RateLimitWindow) RefreshAtOrEstimate(checkedAt int64) *int64 {
	if w.RefreshAt != nil {
		return w.RefreshAt
	}
	if w.WindowSeconds > 0 {
		at := checkedAt + int64(w.WindowSeconds)
		return &at
	}
	return nil
}

const (
	weeklyWindowMinSeconds = 86400
	weeklyWindowSeconds    = 604800
	hourlyWindowMaxSeconds = 43200
)

// PickWeeklyWindow selects the window closest to seven days among those
// spanning at least a day, else the longest window overall.
func PickWeeklyWindow(windows []RateLimitWindow) *RateLimitWindow {
	if len(windows) == 0 {
		return nil
	}

	candidates := make([]RateLimitWindow, 0, len(windows))
	for _, window := range windows {
		if window.WindowSeconds >= weeklyWindowMinSeconds {
			candidates = append(candidates, window)
		}
	}

	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			return distanceFromWeek(candidates[i]) < distanceFromWeek(candidates[j])
		})
		pick := candidates[0]
		return &pick
	}

	pick := windows[0]
	for _, window := range windows[1:] {
		if window.WindowSeconds > pick.WindowSeconds {
			pick = window
		}
	}
	return &pick
}

// PickHourlyWindow selects the shortest window of at most twelve hours,
// excluding the weekly pick by exact (seconds, used percent) match, else the
// shortest remaining window.
func PickHourlyWindow(windows []RateLimitWindow, weekly *RateLimitWindow) *RateLimitWindow {
	remaining := make([]RateLimitWindow, 0, len(windows))
	for _, window := range windows {
		if weekly != nil &&
			window.WindowSeconds == weekly.WindowSeconds &&
			window.UsedPercent == weekly.UsedPercent {
			continue
		}
		remaining = append(remaining, window)
	}
	if len(remaining) == 0 {
		return nil
	}

	var pick *RateLimitWindow
	for i := range remaining {
		window := remaining[i]
		if window.WindowSeconds > hourlyWindowMaxSeconds {
			continue
		}
		if pick == nil || window.WindowSeconds < pick.WindowSeconds {
			pick = &remaining[i]
		}
	}
	if pick != nil {
		result := *pick
		return &result
	}

	result := remaining[0]
	for _, window := range remaining[1:] {
		if window.WindowSeconds < result.WindowSeconds {
			result = window
		}
	}
	return &result
}

func distanceFromWeek(window RateLimitWindow) float64 {
	distance := window.WindowSeconds - weeklyWindowSeconds
	if distance < 0 {
		return -distance
	}
	return distance
}
