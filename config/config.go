// Package config loads process configuration from the environment
// using getEnvOrDefault/getEnvIntOrDefault-style helpers, extended
// with float/bool/duration variants for the wider knob surface.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/watchtower-nvr/core/embedding"
	"github.com/watchtower-nvr/core/store"
)

const (
	defaultHTTPAddr    = ":8090"
	defaultMetricsAddr = ":9090"
	defaultWSAddr      = ":8091"
)

// Config is everything the process needs before it can open the store
// and start the pipeline: connection strings, filesystem roots, model
// paths, and listen addresses. Per-camera and per-detection knobs live
// in the durable store.Settings singleton; the corresponding env vars
// here only seed store.DefaultSettings() the first time the settings
// table is empty.
type Config struct {
	DatabaseURL string
	DataDir     string // object storage root, resolved to an absolute path

	HTTPAddr    string
	WSAddr      string
	MetricsAddr string

	MQTTBrokerURL string
	MQTTClientID  string

	EmbeddingDim int
	AnnThreshold int

	DetectorModelPath  string
	DetectorConfigPath string
	EmbedderModelPath  string
	EmbedderModelName  string

	JanitorIntervalSecs int

	// DefaultSettings seeds store.SettingsRepo the first time the
	// process starts against an empty database.
	DefaultSettings store.Settings
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %d: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvInt64OrDefault(envVar string, defaultVal int64) int64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %d: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %g: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %t: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %s: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

// Load reads DATABASE_URL, DATA_DIR, the detection/recording/
// notification knobs (MIN_CONFIDENCE, MATCH_THRESHOLD,
// PROCESS_EVERY_N_FRAMES, PRE_TRIGGER_SECS, POST_TRIGGER_SECS,
// MAX_SEGMENT_SECS, MAX_STORAGE_BYTES, AUTO_CLEANUP,
// CLEANUP_TARGET_PERCENT, MIN_RETENTION_DAYS), and the model/listener
// settings (EMBEDDING_DIM, ANN_THRESHOLD, MQTT_BROKER_URL,
// METRICS_ADDR, WS_ADDR), falling back to store.DefaultSettings()'
// values for anything unset.
func Load() (Config, error) {
	dataDir := getEnvOrDefault("DATA_DIR", filepath.Join(".", "data"))
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return Config{}, fmt.Errorf("config: resolve DATA_DIR %q: %w", dataDir, err)
	}

	defaults := store.DefaultSettings()
	defaults.Detection.MinConfidence = getEnvFloatOrDefault("MIN_CONFIDENCE", defaults.Detection.MinConfidence)
	defaults.Detection.MatchThreshold = getEnvFloatOrDefault("MATCH_THRESHOLD", defaults.Detection.MatchThreshold)
	defaults.Detection.SightingCooldownSecs = getEnvIntOrDefault("SIGHTING_COOLDOWN_SECS", defaults.Detection.SightingCooldownSecs)
	defaults.Detection.MotionEnabled = getEnvBoolOrDefault("MOTION_ENABLED", defaults.Detection.MotionEnabled)
	defaults.Detection.ProcessEveryNFrames = getEnvIntOrDefault("PROCESS_EVERY_N_FRAMES", defaults.Detection.ProcessEveryNFrames)
	defaults.Detection.MinFaceSizePx = getEnvIntOrDefault("MIN_FACE_SIZE_PX", defaults.Detection.MinFaceSizePx)
	defaults.Detection.MaxFacesPerFrame = getEnvIntOrDefault("MAX_FACES_PER_FRAME", defaults.Detection.MaxFacesPerFrame)
	defaults.Detection.AnnThreshold = getEnvIntOrDefault("ANN_THRESHOLD", defaults.Detection.AnnThreshold)

	defaults.Recording.DetectionTriggered = getEnvBoolOrDefault("DETECTION_TRIGGERED", defaults.Recording.DetectionTriggered)
	defaults.Recording.PreTriggerSecs = getEnvIntOrDefault("PRE_TRIGGER_SECS", defaults.Recording.PreTriggerSecs)
	defaults.Recording.PostTriggerSecs = getEnvIntOrDefault("POST_TRIGGER_SECS", defaults.Recording.PostTriggerSecs)
	defaults.Recording.MaxSegmentSecs = getEnvIntOrDefault("MAX_SEGMENT_SECS", defaults.Recording.MaxSegmentSecs)
	defaults.Recording.MaxStorageBytes = getEnvInt64OrDefault("MAX_STORAGE_BYTES", defaults.Recording.MaxStorageBytes)
	defaults.Recording.AutoCleanup = getEnvBoolOrDefault("AUTO_CLEANUP", defaults.Recording.AutoCleanup)
	defaults.Recording.CleanupTargetPercent = getEnvFloatOrDefault("CLEANUP_TARGET_PERCENT", defaults.Recording.CleanupTargetPercent)
	defaults.Recording.MinRetentionDays = getEnvIntOrDefault("MIN_RETENTION_DAYS", defaults.Recording.MinRetentionDays)

	defaults.Notification.WebsocketEnabled = getEnvBoolOrDefault("WEBSOCKET_ENABLED", defaults.Notification.WebsocketEnabled)
	defaults.Notification.MQTTBrokerURL = getEnvOrDefault("MQTT_BROKER_URL", defaults.Notification.MQTTBrokerURL)
	defaults.Notification.MQTTEnabled = defaults.Notification.MQTTBrokerURL != ""

	cfg := Config{
		DatabaseURL: getEnvOrDefault("DATABASE_URL", "watchtower.db"),
		DataDir:     absDataDir,

		HTTPAddr:    getEnvOrDefault("HTTP_ADDR", defaultHTTPAddr),
		WSAddr:      getEnvOrDefault("WS_ADDR", defaultWSAddr),
		MetricsAddr: getEnvOrDefault("METRICS_ADDR", defaultMetricsAddr),

		MQTTBrokerURL: defaults.Notification.MQTTBrokerURL,
		MQTTClientID:  getEnvOrDefault("MQTT_CLIENT_ID", "watchtowerd"),

		EmbeddingDim: getEnvIntOrDefault("EMBEDDING_DIM", embedding.Dim),
		AnnThreshold: defaults.Detection.AnnThreshold,

		DetectorModelPath:  getEnvOrDefault("DETECTOR_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel"),
		DetectorConfigPath: getEnvOrDefault("DETECTOR_CONFIG_PATH", "./models/deploy.prototxt.txt"),
		EmbedderModelPath:  getEnvOrDefault("EMBEDDER_MODEL_PATH", "./models/arcface.onnx"),
		EmbedderModelName:  getEnvOrDefault("EMBEDDER_MODEL_NAME", "arcface"),

		JanitorIntervalSecs: getEnvIntOrDefault("JANITOR_INTERVAL_SECS", 60),

		DefaultSettings: defaults,
	}
	return cfg, nil
}
