package store

import "time"

// Classification is the identity classification enum from spec.md §3.
type Classification string

const (
	ClassificationTrusted Classification = "trusted"
	ClassificationKnown   Classification = "known"
	ClassificationUnknown Classification = "unknown"
	ClassificationFlagged Classification = "flagged"
)

// CameraKind is the camera connection-kind enum from spec.md §3.
type CameraKind string

const (
	CameraKindBuiltin CameraKind = "builtin"
	CameraKindUSB     CameraKind = "usb"
	CameraKindRTSP    CameraKind = "rtsp"
	CameraKindBrowser CameraKind = "browser"
	CameraKindFile    CameraKind = "file"
	CameraKindScreen  CameraKind = "screen"
)

// CameraStatus is the observed camera status enum from spec.md §3.
type CameraStatus string

const (
	CameraStatusActive       CameraStatus = "active"
	CameraStatusInactive     CameraStatus = "inactive"
	CameraStatusError        CameraStatus = "error"
	CameraStatusDisconnected CameraStatus = "disconnected"
)

// RecordingStatus is the recording lifecycle enum from spec.md §3.
type RecordingStatus string

const (
	RecordingStatusRecording  RecordingStatus = "recording"
	RecordingStatusCompleted  RecordingStatus = "completed"
	RecordingStatusInterrupted RecordingStatus = "interrupted"
	RecordingStatusDeleting   RecordingStatus = "deleting"
)

// BoundingBox is a pixel-space rectangle within a frame.
type BoundingBox struct {
	X int
	Y int
	W int
	H int
}

// Identity is the durable record of a recognized person.
type Identity struct {
	ID             string
	Name           *string
	Classification Classification
	Embedding      []byte // D*4 little-endian float32, see embedding.Embedding.Bytes
	Thumbnail      *string
	Tags           []string
	Notes          *string
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
	SightingCount  int
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Camera is a configured capture source.
type Camera struct {
	ID                   string
	Name                 string
	Kind                 CameraKind
	ConnectionDescriptor string
	LocationLat          *float64
	LocationLon          *float64
	ResolutionW          int
	ResolutionH          int
	FPS                  int
	IsEnabled            bool
	Status               CameraStatus
	LastFrameAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Sighting is an immutable observation of an identity on a camera.
type Sighting struct {
	ID               string
	IdentityID       string
	CameraID         string
	Confidence       float64
	BBox             BoundingBox
	SnapshotRef      *string
	LocationLat      *float64
	LocationLon      *float64
	RecordingID      *string
	RecordingOffsetMS *int64
	DetectedAt       time.Time
}

// Recording is one video segment produced by the Recording Controller.
type Recording struct {
	ID             string
	CameraID       string
	FileRef        string
	SizeBytes      int64
	DurationMS     int64
	FrameCount     int64
	Status         RecordingStatus
	HasDetections  bool
	StartedAt      time.Time
	EndedAt        *time.Time
	CreatedAt      time.Time
}

// DetectionConfig is the detection half of Settings.
type DetectionConfig struct {
	MinConfidence        float64
	MatchThreshold       float64
	SightingCooldownSecs int
	MotionEnabled        bool
	ProcessEveryNFrames  int
	MinFaceSizePx        int
	MaxFacesPerFrame     int
	AnnThreshold         int
}

// RecordingConfig is the recording half of Settings.
type RecordingConfig struct {
	DetectionTriggered    bool
	PreTriggerSecs        int
	PostTriggerSecs       int
	MaxSegmentSecs        int
	MaxStorageBytes       int64
	AutoCleanup           bool
	CleanupTargetPercent  float64
	MinRetentionDays      int
}

// NotificationConfig is the notification half of Settings.
type NotificationConfig struct {
	WebsocketEnabled bool
	MQTTEnabled      bool
	MQTTBrokerURL    string
}

// Settings is the process-wide singleton configuration record.
type Settings struct {
	Detection    DetectionConfig
	Recording    RecordingConfig
	Notification NotificationConfig
}

// DefaultSettings returns the defaults named throughout spec.md §3-§6.
func DefaultSettings() Settings {
	return Settings{
		Detection: DetectionConfig{
			MinConfidence:        0.5,
			MatchThreshold:       0.4,
			SightingCooldownSecs: 30,
			MotionEnabled:        false,
			ProcessEveryNFrames:  3,
			MinFaceSizePx:        40,
			MaxFacesPerFrame:     10,
			AnnThreshold:         2000,
		},
		Recording: RecordingConfig{
			DetectionTriggered:   true,
			PreTriggerSecs:       5,
			PostTriggerSecs:      10,
			MaxSegmentSecs:       300,
			MaxStorageBytes:      50 * 1024 * 1024 * 1024,
			AutoCleanup:          true,
			CleanupTargetPercent: 80,
			MinRetentionDays:     30,
		},
		Notification: NotificationConfig{
			WebsocketEnabled: true,
		},
	}
}

// TimeRange bounds a query by detected_at/started_at.
type TimeRange struct {
	From time.Time
	To   time.Time
}
