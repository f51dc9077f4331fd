package sqlitestore

import "time"

// gormIdentity mirrors store.Identity with gorm tags matching the
// identities table in store/migrations/sql/0001_init.sql, grounded on
// models/gorm_face_embedding.go's tagging style.
type gormIdentity struct {
	ID             string `gorm:"column:id;primaryKey"`
	Name           *string
	Classification string
	Embedding      []byte
	Thumbnail      *string
	Tags           string // json array
	Notes          *string
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
	SightingCount  int
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (gormIdentity) TableName() string { return "identities" }

type gormCamera struct {
	ID                   string `gorm:"column:id;primaryKey"`
	Name                 string
	Kind                 string
	ConnectionDescriptor string
	LocationLat          *float64
	LocationLon          *float64
	Status               string
	ResolutionW          int
	ResolutionH          int
	FPS                  int
	IsEnabled            bool
	LastFrameAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (gormCamera) TableName() string { return "cameras" }

type gormSighting struct {
	ID                string `gorm:"column:id;primaryKey"`
	IdentityID        string
	CameraID          string
	SnapshotRef       *string
	BBoxX             int
	BBoxY             int
	BBoxW             int
	BBoxH             int
	Confidence        float64
	LocationLat       *float64
	LocationLon       *float64
	RecordingID       *string
	RecordingOffsetMS *int64
	DetectedAt        time.Time
}

func (gormSighting) TableName() string { return "sightings" }

type gormRecording struct {
	ID            string `gorm:"column:id;primaryKey"`
	CameraID      string
	FileRef       string
	SizeBytes     int64
	DurationMS    int64
	FrameCount    int64
	Status        string
	HasDetections bool
	StartedAt     time.Time
	EndedAt       *time.Time
	CreatedAt     time.Time
}

func (gormRecording) TableName() string { return "recordings" }

type gormSettings struct {
	ID     int `gorm:"column:id;primaryKey"`
	Config string
}

func (gormSettings) TableName() string { return "settings" }
