package telemetry_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/watchtower-nvr/core/telemetry"
)

func TestCountersAccumulate(t *testing.T) {
	telemetry.FramesCaptured.WithLabelValues("cam-test").Add(3)
	require.Equal(t, float64(3), testutil.ToFloat64(telemetry.FramesCaptured.WithLabelValues("cam-test")))

	telemetry.MatchesTotal.WithLabelValues("cam-test").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(telemetry.MatchesTotal.WithLabelValues("cam-test")))
}

func TestActiveRecordingsGauge(t *testing.T) {
	telemetry.ActiveRecordings.Set(0)
	telemetry.ActiveRecordings.Inc()
	telemetry.ActiveRecordings.Inc()
	telemetry.ActiveRecordings.Dec()
	require.Equal(t, float64(1), testutil.ToFloat64(telemetry.ActiveRecordings))
}
