package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/config"
	"github.com/vcsforge/gitcore/plumbing"
)

func TestLimitsCheckCountZeroMeansUnbounded(t *testing.T) {
	l := Limits{}
	require.NoError(t, l.CheckWants(1_000_000))
	require.NoError(t, l.CheckHaves(1_000_000))
	require.NoError(t, l.CheckRounds(1_000_000))
}

func TestLimitsCheckWantsRejectsOverLimit(t *testing.T) {
	l := Limits{MaxWants: 2}
	require.NoError(t, l.CheckWants(2))
	err := l.CheckWants(3)
	require.ErrorIs(t, err, plumbing.ErrLimitExceeded)
}

func TestLimitsCheckRefNameRejectsOverLimit(t *testing.T) {
	l := Limits{MaxRefNameLength: 5}
	require.NoError(t, l.CheckRefName("refs"))
	err := l.CheckRefName("refs/heads/main")
	require.ErrorIs(t, err, plumbing.ErrLimitExceeded)
}

func TestLimitsFromConfig(t *testing.T) {
	cfg := config.Default()
	l := LimitsFromConfig(cfg.Wire)
	assert.Equal(t, cfg.Wire.MaxWants, l.MaxWants)
	assert.Equal(t, cfg.Wire.MaxHaves, l.MaxHaves)
	assert.Equal(t, cfg.Wire.Timeout.Duration, l.Timeout)
}
