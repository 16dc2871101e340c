package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBootstrapState(t *testing.T) {
	t.Parallel()

	state := DefaultBootstrapState()

	// The quota policy runs out of the box: archive and restore are on by
	// default, opting out is a preference.
	assert.True(t, state.AutoArchiveZeroQuota)
	assert.True(t, state.AutoUnarchiveNonZeroQuota)
	assert.True(t, state.AutoSwitchAwayFromArchived)
	assert.False(t, state.AutoRefreshActiveEnabled)
	assert.Equal(t, AutoRefreshDefaultIntervalSec, state.AutoRefreshIntervalSec)
	assert.Equal(t, "date", state.UsageRefreshDisplayMode)
	assert.NotNil(t, state.UsageByID)
}
