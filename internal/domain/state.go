package domain

const (
	AutoRefreshDefaultIntervalSec = 300
	AutoRefreshMinIntervalSec     = 15
	AutoRefreshMaxIntervalSec     = 21600
)

// BootstrapState is the UI preferences and warm-start blob: theme, the quota
// policy toggles, auto-refresh settings, and the last usage snapshot per
// account id.
type BootstrapState struct {
	Theme                      string
	AutoArchiveZeroQuota       bool
	AutoUnarchiveNonZeroQuota  bool
	AutoSwitchAwayFromArchived bool
	AutoRefreshActiveEnabled   bool
	AutoRefreshIntervalSec     int
	UsageRefreshDisplayMode    string
	UsageByID                  map[AccountID]CreditsInfo
	SavedAt                    int64
}

func DefaultBootstrapState() BootstrapState {
	return BootstrapState{
		AutoArchiveZeroQuota:       true,
		AutoUnarchiveNonZeroQuota:  true,
		AutoSwitchAwayFromArchived: true,
		AutoRefreshIntervalSec:     AutoRefreshDefaultIntervalSec,
		UsageRefreshDisplayMode:    "date",
		UsageByID:                  map[AccountID]CreditsInfo{},
	}
}

// ClampAutoRefreshInterval bounds an interval to the supported range,
// substituting the default for non-positive values.
func ClampAutoRefreshInterval(seconds int) int {
	if seconds <= 0 {
		return AutoRefreshDefaultIntervalSec
	}
	if seconds < AutoRefreshMinIntervalSec {
		return AutoRefreshMinIntervalSec
	}
	if seconds > AutoRefreshMaxIntervalSec {
		return AutoRefreshMaxIntervalSec
	}
	return seconds
}
