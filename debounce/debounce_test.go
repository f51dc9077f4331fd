package debounce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watchtower-nvr/core/debounce"
)

func TestAllowBlocksWithinCooldown(t *testing.T) {
	d := debounce.New(30 * time.Second)
	base := time.Unix(1000, 0)

	require.True(t, d.Allow("id-1", "cam-1", base))
	require.False(t, d.Allow("id-1", "cam-1", base.Add(10*time.Second)))
	require.True(t, d.Allow("id-1", "cam-1", base.Add(31*time.Second)))
}

func TestAllowIsPerIdentityCameraPair(t *testing.T) {
	d := debounce.New(30 * time.Second)
	base := time.Unix(1000, 0)

	require.True(t, d.Allow("id-1", "cam-1", base))
	require.True(t, d.Allow("id-1", "cam-2", base))
	require.True(t, d.Allow("id-2", "cam-1", base))
}

func TestPruneEvictsStaleEntries(t *testing.T) {
	d := debounce.New(30 * time.Second)
	base := time.Unix(1000, 0)
	require.True(t, d.Allow("id-1", "cam-1", base))

	d.Prune(base.Add(31 * time.Second))
	require.True(t, d.Allow("id-1", "cam-1", base.Add(32*time.Second)))
}

func TestSetCooldownAffectsSubsequentCalls(t *testing.T) {
	d := debounce.New(30 * time.Second)
	base := time.Unix(1000, 0)
	require.True(t, d.Allow("id-1", "cam-1", base))

	d.SetCooldown(5 * time.Second)
	require.True(t, d.Allow("id-1", "cam-1", base.Add(6*time.Second)))
}
