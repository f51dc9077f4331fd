// Package recording is the Recording Controller (C9): one instance
// per camera, driven by every raw captured frame (not just the ones
// the Detector processes) plus a detection signal from the pipeline,
// implementing the Idle/Recording/Finalizing/Interrupted state machine
// of spec.md §4.9.
//
// Grounded on workers/image_worker.go's run-loop shape (select over
// inbound work, a mutex-guarded piece of state) and gocv.VideoWriter
// for segment file writing.
package recording

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/capture"
	"github.com/watchtower-nvr/core/events"
	"github.com/watchtower-nvr/core/objectstore"
	"github.com/watchtower-nvr/core/store"
	"github.com/watchtower-nvr/core/telemetry"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// interruptedCooldown is the wait after a disk-write failure before
// the controller will attempt to record again, per spec.md §4.9.
const interruptedCooldown = 5 * time.Second

// Config holds the Settings.Recording fields a Controller needs. The
// pipeline builds it from Settings when a camera starts; later Settings
// updates reach a running Controller only through SetConfig.
type Config struct {
	DetectionTriggered bool
	PreTriggerSecs     int
	PostTriggerSecs    int
	MaxSegmentSecs     int
	TargetFPS          int
}

func (c Config) ringCapacity() int {
	n := c.PreTriggerSecs * c.TargetFPS
	if n < 1 {
		return 1
	}
	return n
}

// Controller owns the state machine and pre-trigger ring buffer for
// one camera.
type Controller struct {
	cameraID string
	repo     store.RecordingRepo
	objects  objectstore.Store
	bus      *events.Bus
	cfg      Config
	log      *zap.SugaredLogger

	mu            sync.Mutex
	state         State
	ring          []capture.Frame
	writer        *gocv.VideoWriter
	current       *store.Recording
	segmentStart  time.Time
	lastDetection time.Time
	framesWritten int64
	hasDetections bool
	interruptedAt time.Time
}

func New(cameraID string, repo store.RecordingRepo, objects objectstore.Store, bus *events.Bus, cfg Config, log *zap.SugaredLogger) *Controller {
	return &Controller{
		cameraID: cameraID,
		repo:     repo,
		objects:  objects,
		bus:      bus,
		cfg:      cfg,
		log:      log,
		state:    StateIdle,
	}
}

// SetConfig applies a live Settings.Recording update; it takes effect
// from the next Ingest call, including for a segment already open,
// matching the rest of Settings' "next frame" semantics.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RingLen reports the pre-trigger buffer's current length, for tests
// and /healthz diagnostics.
func (c *Controller) RingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ring)
}

// Active reports the currently open recording's id and start time, so
// the Matcher can stamp a Sighting with recording_id/recording_offset_ms
// (spec.md §4.9). ok is false when this camera has no open segment.
func (c *Controller) Active() (recordingID string, startedAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording || c.current == nil {
		return "", time.Time{}, false
	}
	return c.current.ID, c.current.StartedAt, true
}

// RecoverInterrupted marks any recording left in status=recording for
// this camera as interrupted, run once at startup before Ingest is
// called for the first time.
func (c *Controller) RecoverInterrupted(now time.Time) error {
	open, err := c.repo.OpenForCamera(c.cameraID)
	if err != nil {
		if store.IsKind(err, store.KindNotFound) {
			return nil
		}
		return fmt.Errorf("recording: query open recording for %s: %w", c.cameraID, err)
	}
	durationMS := now.Sub(open.StartedAt).Milliseconds()
	if err := c.repo.MarkInterrupted(open.ID, now, durationMS, open.SizeBytes, open.FrameCount); err != nil {
		return fmt.Errorf("recording: mark interrupted %s: %w", open.ID, err)
	}
	c.bus.Publish(events.RecordingStopped(events.RecordingStoppedPayload{
		RecordingID: open.ID,
		CameraID:    c.cameraID,
		Status:      store.RecordingStatusInterrupted,
		DurationMS:  durationMS,
	}, now))
	return nil
}

// Ingest is called for every raw captured frame regardless of whether
// the Detector processed it (the pipeline calls it at the tail of the
// Matcher stage), with
// detected reporting whether this frame carried at least one accepted
// detection.
func (c *Controller) Ingest(frame capture.Frame, detected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle:
		c.pushRing(frame)
		if detected && c.cfg.DetectionTriggered {
			c.startRecording(frame)
		}
	case StateInterrupted:
		if time.Since(c.interruptedAt) >= interruptedCooldown {
			c.state = StateIdle
			c.ring = nil
			c.pushRing(frame)
			if detected && c.cfg.DetectionTriggered {
				c.startRecording(frame)
			}
		}
	case StateRecording:
		if detected {
			c.lastDetection = frame.CapturedAt
			c.hasDetections = true
		}
		if err := c.writeFrame(frame); err != nil {
			c.interrupt(frame.CapturedAt, err)
			return
		}
		c.maybeFinalize(frame, detected)
	}
}

func (c *Controller) pushRing(frame capture.Frame) {
	capacity := c.cfg.ringCapacity()
	clone := frame.Clone()
	c.ring = append(c.ring, clone)
	for len(c.ring) > capacity {
		c.ring[0].Close()
		c.ring = c.ring[1:]
	}
}

func (c *Controller) startRecording(trigger capture.Frame) {
	id := uuid.NewString()
	started := trigger.CapturedAt
	key := recordingKey(c.cameraID, started)

	resolver, ok := c.objects.(objectstore.PathResolver)
	if !ok {
		c.log.Errorw("recording: object store does not support ResolvePath, cannot record", "camera_id", c.cameraID)
		return
	}
	path, err := resolver.ResolvePath(key)
	if err != nil {
		c.log.Errorw("recording: resolve segment path", "error", err)
		return
	}

	width, height := trigger.Mat.Cols(), trigger.Mat.Rows()
	if width == 0 || height == 0 {
		c.log.Errorw("recording: trigger frame has no size", "camera_id", c.cameraID)
		return
	}
	writer, err := gocv.VideoWriterFile(path, "MJPG", float64(c.cfg.TargetFPS), width, height, true)
	if err != nil {
		c.log.Errorw("recording: open video writer", "error", err, "path", path)
		return
	}

	c.state = StateRecording
	c.writer = writer
	c.segmentStart = started
	c.lastDetection = started
	c.framesWritten = 0
	c.hasDetections = true
	c.current = &store.Recording{
		ID:        id,
		CameraID:  c.cameraID,
		FileRef:   key,
		Status:    store.RecordingStatusRecording,
		StartedAt: started,
		CreatedAt: started,
	}
	if err := c.repo.Insert(c.current); err != nil {
		c.log.Errorw("recording: insert recording row", "error", err)
	}
	c.bus.Publish(events.RecordingStarted(events.RecordingStartedPayload{
		RecordingID: id,
		CameraID:    c.cameraID,
		StartedAt:   started,
	}))
	telemetry.ActiveRecordings.Inc()

	for _, buffered := range c.ring {
		_ = c.writer.Write(buffered.Mat)
		c.framesWritten++
		buffered.Close()
	}
	c.ring = nil
	_ = c.writer.Write(trigger.Mat)
	c.framesWritten++
}

func (c *Controller) writeFrame(frame capture.Frame) error {
	if err := c.writer.Write(frame.Mat); err != nil {
		return fmt.Errorf("recording: write frame: %w", err)
	}
	c.framesWritten++
	return nil
}

// maybeFinalize checks the post-trigger-timeout and max-segment-secs
// transitions of spec.md §4.9's state diagram.
func (c *Controller) maybeFinalize(frame capture.Frame, stillDetecting bool) {
	now := frame.CapturedAt
	elapsedSinceDetection := now.Sub(c.lastDetection)
	segmentDuration := now.Sub(c.segmentStart)

	switch {
	case elapsedSinceDetection >= time.Duration(c.cfg.PostTriggerSecs)*time.Second:
		c.finalize(now)
	case segmentDuration >= time.Duration(c.cfg.MaxSegmentSecs)*time.Second:
		c.finalizeAndMaybeRestart(frame, stillDetecting)
	}
}

func (c *Controller) finalize(now time.Time) {
	c.state = StateFinalizing
	rec := c.current
	c.closeWriter()
	durationMS := now.Sub(rec.StartedAt).Milliseconds()
	size, err := c.objects.SizeOf(rec.FileRef)
	if err != nil {
		c.log.Warnw("recording: size lookup failed", "error", err, "file_ref", rec.FileRef)
	}
	if err := c.repo.Finalize(rec.ID, now, durationMS, size, c.framesWritten, c.hasDetections); err != nil {
		c.log.Errorw("recording: finalize row", "error", err)
	}
	c.bus.Publish(events.RecordingStopped(events.RecordingStoppedPayload{
		RecordingID: rec.ID,
		CameraID:    c.cameraID,
		Status:      store.RecordingStatusCompleted,
		DurationMS:  durationMS,
	}, now))
	telemetry.ActiveRecordings.Dec()
	c.state = StateIdle
	c.current = nil
}

// finalizeAndMaybeRestart handles the max_segment_secs rollover: the
// current segment is closed, and if detection is still active a new
// one starts immediately, re-using frame as the first frame of the new
// segment.
func (c *Controller) finalizeAndMaybeRestart(frame capture.Frame, stillDetecting bool) {
	now := frame.CapturedAt
	c.state = StateFinalizing
	rec := c.current
	c.closeWriter()
	durationMS := now.Sub(rec.StartedAt).Milliseconds()
	size, err := c.objects.SizeOf(rec.FileRef)
	if err != nil {
		c.log.Warnw("recording: size lookup failed", "error", err, "file_ref", rec.FileRef)
	}
	if err := c.repo.Finalize(rec.ID, now, durationMS, size, c.framesWritten, c.hasDetections); err != nil {
		c.log.Errorw("recording: finalize row", "error", err)
	}
	c.bus.Publish(events.RecordingStopped(events.RecordingStoppedPayload{
		RecordingID: rec.ID,
		CameraID:    c.cameraID,
		Status:      store.RecordingStatusCompleted,
		DurationMS:  durationMS,
	}, now))
	telemetry.ActiveRecordings.Dec()
	c.state = StateIdle
	c.current = nil

	if stillDetecting {
		c.startRecording(frame)
	}
}

func (c *Controller) interrupt(now time.Time, cause error) {
	c.log.Errorw("recording: write failure, interrupting", "error", cause, "camera_id", c.cameraID)
	rec := c.current
	c.closeWriter()
	if rec != nil {
		durationMS := now.Sub(rec.StartedAt).Milliseconds()
		size, _ := c.objects.SizeOf(rec.FileRef)
		if err := c.repo.MarkInterrupted(rec.ID, now, durationMS, size, c.framesWritten); err != nil {
			c.log.Errorw("recording: mark interrupted", "error", err)
		}
		c.bus.Publish(events.RecordingStopped(events.RecordingStoppedPayload{
			RecordingID: rec.ID,
			CameraID:    c.cameraID,
			Status:      store.RecordingStatusInterrupted,
			DurationMS:  durationMS,
		}, now))
		telemetry.ActiveRecordings.Dec()
	}
	c.state = StateInterrupted
	c.interruptedAt = now
	c.current = nil
}

func (c *Controller) closeWriter() {
	if c.writer != nil {
		c.writer.Close()
		c.writer = nil
	}
}

// Close releases the ring buffer and any open segment, marking it
// interrupted; called on pipeline shutdown.
func (c *Controller) Close(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.ring {
		f.Close()
	}
	c.ring = nil
	if c.state == StateRecording {
		c.interrupt(now, fmt.Errorf("recording: controller closed while recording"))
	}
}

func recordingKey(cameraID string, at time.Time) string {
	return fmt.Sprintf("recordings/%04d/%02d/%02d/%s/%s.avi", at.Year(), at.Month(), at.Day(), cameraID, at.UTC().Format("20060102T150405.000Z"))
}
