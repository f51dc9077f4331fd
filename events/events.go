// Package events is the Event Bus (C10): a typed broadcast of
// DomainEvent to WebSocket clients and optional MQTT fanout.
//
// Publishers never block on slow subscribers. Delivery is best-effort;
// the durable store (store.*Repo) remains the source of truth. A
// subscriber that falls behind its bounded queue does not see its
// events reordered around a Lagged marker — it simply learns, on its
// next successful receive, how many events it missed and should
// reconcile from the Identity Store.
package events

import (
	"encoding/json"
	"time"

	"github.com/watchtower-nvr/core/store"
)

// Type discriminates the DomainEvent variants of spec.md §4.10.
type Type string

const (
	TypeFaceDetected        Type = "face_detected"
	TypeProfileCreated      Type = "profile_created"
	TypeProfileSighted      Type = "profile_sighted"
	TypeProfileClassified   Type = "profile_classified"
	TypeRecordingStarted    Type = "recording_started"
	TypeRecordingStopped    Type = "recording_stopped"
	TypeCameraStatusChanged Type = "camera_status_changed"
	TypeStorageWarning      Type = "storage_warning"
)

// FaceDetectedPayload fires for every detection the Detector emits,
// matched or not, before the Matcher has resolved an identity.
type FaceDetectedPayload struct {
	CameraID   string    `json:"camera_id"`
	Confidence float64   `json:"confidence"`
	BBox       store.BoundingBox `json:"bbox"`
	DetectedAt time.Time `json:"detected_at"`
}

// ProfileCreatedPayload fires once, the first time an unmatched
// embedding causes the Matcher to mint a new identity.
type ProfileCreatedPayload struct {
	IdentityID     string               `json:"identity_id"`
	Classification store.Classification `json:"classification"`
	CameraID       string               `json:"camera_id"`
	CreatedAt      time.Time            `json:"created_at"`
}

// ProfileSightedPayload fires every time the Matcher records a
// Sighting, whether against an existing identity or a freshly created
// one, after the Sighting Debouncer's cooldown check has passed.
type ProfileSightedPayload struct {
	SightingID string    `json:"sighting_id"`
	IdentityID string    `json:"identity_id"`
	CameraID   string    `json:"camera_id"`
	Confidence float64   `json:"confidence"`
	BBox       store.BoundingBox `json:"bbox"`
	DetectedAt time.Time `json:"detected_at"`
}

// ProfileClassifiedPayload fires when an operator (or the API layer)
// changes an identity's Classification.
type ProfileClassifiedPayload struct {
	IdentityID string               `json:"identity_id"`
	From       store.Classification `json:"from"`
	To         store.Classification `json:"to"`
}

// RecordingStartedPayload fires when the Recording Controller opens a
// new segment for a camera.
type RecordingStartedPayload struct {
	RecordingID string    `json:"recording_id"`
	CameraID    string    `json:"camera_id"`
	StartedAt   time.Time `json:"started_at"`
}

// RecordingStoppedPayload fires when a segment is finalized or marked
// interrupted.
type RecordingStoppedPayload struct {
	RecordingID string               `json:"recording_id"`
	CameraID    string               `json:"camera_id"`
	Status      store.RecordingStatus `json:"status"`
	DurationMS  int64                `json:"duration_ms"`
}

// CameraStatusChangedPayload mirrors the Frame Source state machine
// transitions of spec.md §4.4 onto the durable CameraStatus enum.
type CameraStatusChangedPayload struct {
	CameraID string             `json:"camera_id"`
	From     store.CameraStatus `json:"from"`
	To       store.CameraStatus `json:"to"`
}

// StorageWarningPayload fires when the Storage Janitor (C11) crosses
// its usage watermarks.
type StorageWarningPayload struct {
	UsedPercent float64 `json:"used_percent"`
	Threshold   float64 `json:"threshold"`
	Message     string  `json:"message"`
}

// DomainEvent is the envelope broadcast on the bus and serialized to
// WebSocket/MQTT subscribers as {"type": ..., "payload": ...}.
type DomainEvent struct {
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON pins the field order documented above; DomainEvent's
// struct tags already produce it, this override exists only so
// callers relying on json.Marshaler don't need to know that.
func (e DomainEvent) MarshalJSON() ([]byte, error) {
	type alias DomainEvent
	return json.Marshal(alias(e))
}

func FaceDetected(p FaceDetectedPayload) DomainEvent {
	return DomainEvent{Type: TypeFaceDetected, Payload: p, Timestamp: p.DetectedAt}
}

func ProfileCreated(p ProfileCreatedPayload) DomainEvent {
	return DomainEvent{Type: TypeProfileCreated, Payload: p, Timestamp: p.CreatedAt}
}

func ProfileSighted(p ProfileSightedPayload) DomainEvent {
	return DomainEvent{Type: TypeProfileSighted, Payload: p, Timestamp: p.DetectedAt}
}

func ProfileClassified(p ProfileClassifiedPayload, at time.Time) DomainEvent {
	return DomainEvent{Type: TypeProfileClassified, Payload: p, Timestamp: at}
}

func RecordingStarted(p RecordingStartedPayload) DomainEvent {
	return DomainEvent{Type: TypeRecordingStarted, Payload: p, Timestamp: p.StartedAt}
}

func RecordingStopped(p RecordingStoppedPayload, at time.Time) DomainEvent {
	return DomainEvent{Type: TypeRecordingStopped, Payload: p, Timestamp: at}
}

func CameraStatusChanged(p CameraStatusChangedPayload, at time.Time) DomainEvent {
	return DomainEvent{Type: TypeCameraStatusChanged, Payload: p, Timestamp: at}
}

func StorageWarning(p StorageWarningPayload, at time.Time) DomainEvent {
	return DomainEvent{Type: TypeStorageWarning, Payload: p, Timestamp: at}
}
