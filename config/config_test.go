package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watchtower-nvr/core/config"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			}
		})
	}
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "DATA_DIR", "MIN_CONFIDENCE", "MATCH_THRESHOLD",
		"PROCESS_EVERY_N_FRAMES", "PRE_TRIGGER_SECS", "POST_TRIGGER_SECS",
		"MAX_SEGMENT_SECS", "MAX_STORAGE_BYTES", "AUTO_CLEANUP",
		"CLEANUP_TARGET_PERCENT", "MIN_RETENTION_DAYS", "EMBEDDING_DIM",
		"ANN_THRESHOLD", "MQTT_BROKER_URL", "METRICS_ADDR", "WS_ADDR")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "watchtower.db", cfg.DatabaseURL)
	require.NotEmpty(t, cfg.DataDir)
	require.Equal(t, 128, cfg.EmbeddingDim)
	require.Equal(t, 2000, cfg.AnnThreshold)
	require.Empty(t, cfg.MQTTBrokerURL)
	require.False(t, cfg.DefaultSettings.Notification.MQTTEnabled)

	require.Equal(t, 0.5, cfg.DefaultSettings.Detection.MinConfidence)
	require.Equal(t, 0.4, cfg.DefaultSettings.Detection.MatchThreshold)
	require.Equal(t, 3, cfg.DefaultSettings.Detection.ProcessEveryNFrames)
	require.Equal(t, 5, cfg.DefaultSettings.Recording.PreTriggerSecs)
	require.Equal(t, 10, cfg.DefaultSettings.Recording.PostTriggerSecs)
	require.Equal(t, 300, cfg.DefaultSettings.Recording.MaxSegmentSecs)
	require.Equal(t, int64(50*1024*1024*1024), cfg.DefaultSettings.Recording.MaxStorageBytes)
	require.True(t, cfg.DefaultSettings.Recording.AutoCleanup)
	require.Equal(t, 80.0, cfg.DefaultSettings.Recording.CleanupTargetPercent)
	require.Equal(t, 30, cfg.DefaultSettings.Recording.MinRetentionDays)
}

func TestLoadReadsOverrides(t *testing.T) {
	clearEnv(t, "MIN_CONFIDENCE", "MATCH_THRESHOLD", "PROCESS_EVERY_N_FRAMES",
		"MAX_STORAGE_BYTES", "AUTO_CLEANUP", "EMBEDDING_DIM", "MQTT_BROKER_URL")

	os.Setenv("MIN_CONFIDENCE", "0.75")
	os.Setenv("MATCH_THRESHOLD", "0.6")
	os.Setenv("PROCESS_EVERY_N_FRAMES", "5")
	os.Setenv("MAX_STORAGE_BYTES", "1073741824")
	os.Setenv("AUTO_CLEANUP", "false")
	os.Setenv("EMBEDDING_DIM", "256")
	os.Setenv("MQTT_BROKER_URL", "tcp://localhost:1883")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, 0.75, cfg.DefaultSettings.Detection.MinConfidence)
	require.Equal(t, 0.6, cfg.DefaultSettings.Detection.MatchThreshold)
	require.Equal(t, 5, cfg.DefaultSettings.Detection.ProcessEveryNFrames)
	require.Equal(t, int64(1073741824), cfg.DefaultSettings.Recording.MaxStorageBytes)
	require.False(t, cfg.DefaultSettings.Recording.AutoCleanup)
	require.Equal(t, 256, cfg.EmbeddingDim)
	require.Equal(t, "tcp://localhost:1883", cfg.MQTTBrokerURL)
	require.True(t, cfg.DefaultSettings.Notification.MQTTEnabled)
}

func TestLoadFallsBackOnInvalidNumericEnv(t *testing.T) {
	clearEnv(t, "MIN_CONFIDENCE", "PROCESS_EVERY_N_FRAMES")
	os.Setenv("MIN_CONFIDENCE", "not-a-float")
	os.Setenv("PROCESS_EVERY_N_FRAMES", "not-an-int")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 0.5, cfg.DefaultSettings.Detection.MinConfidence)
	require.Equal(t, 3, cfg.DefaultSettings.Detection.ProcessEveryNFrames)
}
