// Package match is the Matcher (C7): resolves a detected face's
// embedding against the Embedding Index, either attaching it to an
// existing identity or minting a new one, and always ends by recording
// a Sighting (subject to the Sighting Debouncer's cooldown) and
// publishing the corresponding DomainEvents.
package match

import (
	"bytes"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/debounce"
	"github.com/watchtower-nvr/core/detect"
	"github.com/watchtower-nvr/core/embedding"
	"github.com/watchtower-nvr/core/events"
	"github.com/watchtower-nvr/core/index"
	"github.com/watchtower-nvr/core/objectstore"
	"github.com/watchtower-nvr/core/store"
	"github.com/watchtower-nvr/core/telemetry"
)

// snapshotMaxSize is the longest-side target for a newly created
// identity's thumbnail, mirroring media/processor.go's
// GenerateThumbnail/ThumbnailJpegQuality convention.
const snapshotMaxSize = 320

// Input is one detected face waiting to be resolved to an identity.
type Input struct {
	CameraID   string
	FrameSeq   uint64
	BBox       store.BoundingBox
	Embedding  embedding.Embedding
	Crop       gocv.Mat
	Landmarks  []detect.Point2D
	DetectedAt time.Time

	// RecordingID/RecordingStartedAt describe the Recording Controller's
	// currently open segment for this camera, if any. HasRecording is
	// false when the camera is idle between segments, in which case the
	// resulting Sighting's recording_id/recording_offset_ms stay nil —
	// the sole mechanism (spec.md §4.9) linking a sighting to its video.
	RecordingID        string
	RecordingStartedAt time.Time
	HasRecording       bool
}

// recordingLink computes the (recording_id, recording_offset_ms) pair a
// Sighting should be stamped with, or (nil, nil) when in has no active
// recording to link against.
func recordingLink(in Input) (*string, *int64) {
	if !in.HasRecording {
		return nil, nil
	}
	id := in.RecordingID
	offsetMS := in.DetectedAt.Sub(in.RecordingStartedAt).Milliseconds()
	return &id, &offsetMS
}

// SettingsSource lets the Matcher read match_threshold and
// sighting_cooldown_secs fresh on every call, per spec.md §4.7's "a
// live update takes effect on the next frame" requirement.
type SettingsSource interface {
	Load() (store.Settings, error)
}

// Matcher wires the Embedding Index, the durable stores, Object
// Storage and the Event Bus together per the C7 algorithm.
type Matcher struct {
	idx        index.Index
	identities store.IdentityRepo
	sightings  store.SightingRepo
	objects    objectstore.Store
	settings   SettingsSource
	debouncer  *debounce.Debouncer
	bus        *events.Bus
	log        *zap.SugaredLogger

	// createMu serializes the "no candidate -> create identity" path
	// across concurrent camera pipelines on this node, per spec.md
	// §4.7's per-node create-lock requirement.
	createMu sync.Mutex
}

func New(idx index.Index, identities store.IdentityRepo, sightings store.SightingRepo, objects objectstore.Store, settings SettingsSource, debouncer *debounce.Debouncer, bus *events.Bus, log *zap.SugaredLogger) *Matcher {
	return &Matcher{
		idx:        idx,
		identities: identities,
		sightings:  sightings,
		objects:    objects,
		settings:   settings,
		debouncer:  debouncer,
		bus:        bus,
		log:        log,
	}
}

// distanceToConfidence implements spec.md §4.7's
// max(0, min(1, 1 - d/match_threshold)).
func distanceToConfidence(d, matchThreshold float64) float64 {
	if matchThreshold <= 0 {
		return 0
	}
	c := 1 - d/matchThreshold
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Resolve runs the C7 algorithm for one detected face.
func (m *Matcher) Resolve(in Input) error {
	settings, err := m.settings.Load()
	if err != nil {
		return fmt.Errorf("match: load settings: %w", err)
	}
	threshold := settings.Detection.MatchThreshold
	m.debouncer.SetCooldown(time.Duration(settings.Detection.SightingCooldownSecs) * time.Second)

	candidates := m.idx.Nearest(in.Embedding, 1, threshold)
	if len(candidates) > 0 {
		return m.handleMatch(in, candidates[0], threshold)
	}
	return m.handleNew(in, threshold)
}

func (m *Matcher) handleMatch(in Input, cand index.Candidate, threshold float64) error {
	confidence := distanceToConfidence(cand.Distance, threshold)
	m.publishFaceDetected(in, confidence)
	telemetry.MatchesTotal.WithLabelValues(in.CameraID).Inc()

	if !m.debouncer.Allow(cand.IdentityID, in.CameraID, in.DetectedAt) {
		return nil
	}

	if err := m.identities.IncrementSighting(cand.IdentityID, in.DetectedAt); err != nil {
		return fmt.Errorf("match: increment sighting for %s: %w", cand.IdentityID, err)
	}

	recordingID, recordingOffsetMS := recordingLink(in)
	sighting := &store.Sighting{
		ID:                uuid.NewString(),
		IdentityID:        cand.IdentityID,
		CameraID:          in.CameraID,
		Confidence:        confidence,
		BBox:              in.BBox,
		RecordingID:       recordingID,
		RecordingOffsetMS: recordingOffsetMS,
		DetectedAt:        in.DetectedAt,
	}
	if err := m.sightings.Insert(sighting); err != nil {
		return fmt.Errorf("match: insert sighting: %w", err)
	}

	m.bus.Publish(events.ProfileSighted(events.ProfileSightedPayload{
		SightingID: sighting.ID,
		IdentityID: cand.IdentityID,
		CameraID:   in.CameraID,
		Confidence: confidence,
		BBox:       in.BBox,
		DetectedAt: in.DetectedAt,
	}))
	return nil
}

// handleNew serializes identity creation behind createMu and
// re-queries the Index with the lock held, so two frames racing on the
// same unknown face cannot mint two identities (spec.md §4.7).
func (m *Matcher) handleNew(in Input, threshold float64) error {
	m.publishFaceDetected(in, 0)

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if candidates := m.idx.Nearest(in.Embedding, 1, threshold); len(candidates) > 0 {
		return m.handleMatch(in, candidates[0], threshold)
	}
	telemetry.NewIdentitiesTotal.WithLabelValues(in.CameraID).Inc()

	snapshotRef, err := m.saveSnapshot(in)
	if err != nil {
		m.log.Warnw("match: snapshot save failed, continuing without one", "error", err)
	}

	now := in.DetectedAt
	identity := &store.Identity{
		ID:             uuid.NewString(),
		Classification: store.ClassificationUnknown,
		Embedding:      in.Embedding.Bytes(),
		FirstSeenAt:    now,
		LastSeenAt:     now,
		SightingCount:  0,
		IsActive:       true,
	}
	if snapshotRef != "" {
		identity.Thumbnail = &snapshotRef
	}
	if err := m.identities.Save(identity); err != nil {
		return fmt.Errorf("match: save new identity: %w", err)
	}
	m.idx.Add(identity.ID, in.Embedding, now)

	m.bus.Publish(events.ProfileCreated(events.ProfileCreatedPayload{
		IdentityID:     identity.ID,
		Classification: identity.Classification,
		CameraID:       in.CameraID,
		CreatedAt:      now,
	}))

	if !m.debouncer.Allow(identity.ID, in.CameraID, in.DetectedAt) {
		return nil
	}
	if err := m.identities.IncrementSighting(identity.ID, in.DetectedAt); err != nil {
		return fmt.Errorf("match: increment sighting for new identity %s: %w", identity.ID, err)
	}

	recordingID, recordingOffsetMS := recordingLink(in)
	sighting := &store.Sighting{
		ID:                uuid.NewString(),
		IdentityID:        identity.ID,
		CameraID:          in.CameraID,
		Confidence:        1,
		BBox:              in.BBox,
		SnapshotRef:       identity.Thumbnail,
		RecordingID:       recordingID,
		RecordingOffsetMS: recordingOffsetMS,
		DetectedAt:        in.DetectedAt,
	}
	if err := m.sightings.Insert(sighting); err != nil {
		return fmt.Errorf("match: insert sighting for new identity: %w", err)
	}

	m.bus.Publish(events.ProfileSighted(events.ProfileSightedPayload{
		SightingID: sighting.ID,
		IdentityID: identity.ID,
		CameraID:   in.CameraID,
		Confidence: 1,
		BBox:       in.BBox,
		DetectedAt: in.DetectedAt,
	}))
	return nil
}

func (m *Matcher) publishFaceDetected(in Input, confidence float64) {
	m.bus.Publish(events.FaceDetected(events.FaceDetectedPayload{
		CameraID:   in.CameraID,
		Confidence: confidence,
		BBox:       in.BBox,
		DetectedAt: in.DetectedAt,
	}))
}

// saveSnapshot resizes the crop so its longest side is snapshotMaxSize
// (mirroring GenerateThumbnail's aspect-preserving resize) and writes
// it to Object Storage as a JPEG.
func (m *Matcher) saveSnapshot(in Input) (string, error) {
	if in.Crop.Empty() {
		return "", fmt.Errorf("match: empty crop for snapshot")
	}
	img, err := in.Crop.ToImage()
	if err != nil {
		return "", fmt.Errorf("match: crop to image: %w", err)
	}

	resized := resizeLongestSide(img, snapshotMaxSize)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("match: encode snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s/%s.jpg", in.CameraID, uuid.NewString())
	ref, err := m.objects.Put(key, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("match: put snapshot: %w", err)
	}
	return ref, nil
}

func resizeLongestSide(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSize && h <= maxSize {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxSize, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxSize, imaging.Lanczos)
}
