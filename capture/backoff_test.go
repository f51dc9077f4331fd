package capture_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watchtower-nvr/core/capture"
)

func TestBackoffConfigDelaySchedule(t *testing.T) {
	cfg := capture.DefaultBackoffConfig()
	require.Equal(t, time.Second, cfg.Delay(1))
	require.Equal(t, 2*time.Second, cfg.Delay(2))
	require.Equal(t, 4*time.Second, cfg.Delay(3))
	require.Equal(t, 8*time.Second, cfg.Delay(4))
	require.Equal(t, 16*time.Second, cfg.Delay(5))
}

func TestBackoffConfigCapsAtMaxDelay(t *testing.T) {
	cfg := capture.DefaultBackoffConfig()
	require.Equal(t, cfg.MaxDelay, cfg.Delay(6))
	require.Equal(t, cfg.MaxDelay, cfg.Delay(100))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "running", capture.StateRunning.String())
	require.Equal(t, "degraded", capture.StateDegraded.String())
}
