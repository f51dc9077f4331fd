// Package pipeline is the Pipeline Supervisor (C12): it owns a
// per-camera task graph — FrameSource -> Detector -> Embedder ->
// Matcher — over bounded channels that apply backpressure upstream.
// Every frame, selected for detection or not, flows through all three
// stages; the Recording Controller is fed at the tail of the Matcher
// stage, once each frame's true detected/not-detected outcome is
// known, rather than off a separate tee racing the detector.
//
// Grounded on workers/image_worker.go's bounded-queue + sync.WaitGroup
// + StopChan shutdown shape, generalized from a single worker pool
// into a multi-stage graph with golang.org/x/sync/errgroup driving
// cancellation.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/facette/natsort"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/watchtower-nvr/core/capture"
	"github.com/watchtower-nvr/core/capture/gocvsrc"
	"github.com/watchtower-nvr/core/capture/pushsrc"
	"github.com/watchtower-nvr/core/capture/rtspsrc"
	"github.com/watchtower-nvr/core/detect"
	"github.com/watchtower-nvr/core/embedder"
	"github.com/watchtower-nvr/core/events"
	"github.com/watchtower-nvr/core/match"
	"github.com/watchtower-nvr/core/objectstore"
	"github.com/watchtower-nvr/core/recording"
	"github.com/watchtower-nvr/core/store"
	"github.com/watchtower-nvr/core/telemetry"
)

// queue sizes from spec.md §4.12.
const (
	qDet = 2
	qEmb = 8
)

// drainDeadline bounds how long the Matcher stage spends discarding
// queued frames after cancellation; StopCamera waits up to one second
// longer than this for the whole graph to finish.
const drainDeadline = 3 * time.Second

// pushIdleTimeout is T_push_idle for browser-kind cameras.
const pushIdleTimeout = 30 * time.Second

// SettingsSource lets the Supervisor read live Settings on every
// frame's detector/embedder stage, per spec.md §3's "next frame"
// semantics for config updates.
type SettingsSource interface {
	Load() (store.Settings, error)
}

// Deps bundles everything a camera task graph needs, built once in
// cmd/watchtowerd and shared across every camera.
type Deps struct {
	Cameras    store.CameraRepo
	Recordings store.RecordingRepo
	Objects    objectstore.Store
	Detector   detect.Detector
	Embedder   embedder.Embedder
	Matcher    *match.Matcher
	Settings   SettingsSource
	Bus        *events.Bus
	Log        *zap.SugaredLogger
}

// frameWork threads one raw frame, plus whether it was selected for
// detection and (once the detector stage has run) its detections,
// through the graph. Exactly one stage — the matcher stage — closes
// the frame, after the Recording Controller has seen it.
type frameWork struct {
	frame      capture.Frame
	selected   bool
	detections []detect.Detection
}

// cameraTask is one running per-camera task graph.
type cameraTask struct {
	cameraID string
	source   capture.Source
	recCtrl  *recording.Controller
	cancel   context.CancelFunc
	done     chan struct{}
}

// Supervisor owns every running camera task graph.
type Supervisor struct {
	deps Deps

	mu      sync.Mutex
	cameras map[string]*cameraTask
}

func NewSupervisor(deps Deps) *Supervisor {
	return &Supervisor{
		deps:    deps,
		cameras: make(map[string]*cameraTask),
	}
}

// Start brings up every enabled camera, ordered by natsort over camera
// names so supervisor logs and startup are deterministic across runs
// (spec.md §4.12).
func (s *Supervisor) Start(ctx context.Context) error {
	cams, err := s.deps.Cameras.ListEnabled()
	if err != nil {
		return fmt.Errorf("pipeline: list enabled cameras: %w", err)
	}
	sort.Slice(cams, func(i, j int) bool {
		return natsort.Compare(cams[i].Name, cams[j].Name)
	})
	for _, cam := range cams {
		if err := s.StartCamera(ctx, cam); err != nil {
			s.deps.Log.Errorw("pipeline: start camera failed", "error", err, "camera_id", cam.ID)
		}
	}
	return nil
}

// StartCamera creates and launches the task graph for one camera.
func (s *Supervisor) StartCamera(parent context.Context, cam store.Camera) error {
	s.mu.Lock()
	if _, exists := s.cameras[cam.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("pipeline: camera %s already running", cam.ID)
	}
	s.mu.Unlock()

	source, err := newSource(cam, s.deps.Log)
	if err != nil {
		return fmt.Errorf("pipeline: build source for %s: %w", cam.ID, err)
	}

	settings, err := s.deps.Settings.Load()
	if err != nil {
		return fmt.Errorf("pipeline: load settings: %w", err)
	}

	recCtrl := recording.New(cam.ID, s.deps.Recordings, s.deps.Objects, s.deps.Bus, recordingConfigFrom(settings, cam.FPS), s.deps.Log)
	if err := recCtrl.RecoverInterrupted(time.Now()); err != nil {
		s.deps.Log.Errorw("pipeline: recover interrupted recording", "error", err, "camera_id", cam.ID)
	}

	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)

	detIn := make(chan frameWork, qDet)
	embIn := make(chan frameWork, qEmb)

	gate := newMotionGate(0.01)
	frameCounter := 0

	g.Go(func() error { return source.Run(gctx) })

	// Watches the Frame Source's lifecycle state and mirrors it onto
	// Camera.status, implementing capture.StateObserver's contract
	// without requiring every capture.Source backend to hold a
	// callback reference.
	g.Go(func() error { return s.watchState(gctx, cam.ID, source) })

	// Stage 1: motion-gate + frame-skip selection, per DESIGN.md's
	// "motion first, then process_every_n_frames" decision.
	g.Go(func() error {
		defer close(detIn)
		for {
			select {
			case <-gctx.Done():
				return nil
			case frame, ok := <-source.Frames():
				if !ok {
					return nil
				}
				telemetry.FramesCaptured.WithLabelValues(cam.ID).Inc()
				dc := s.loadDetectionConfig()
				selected := true
				if dc.MotionEnabled && !gate.Check(frame.Mat) {
					selected = false
				}
				if selected && dc.ProcessEveryNFrames > 1 {
					frameCounter++
					if frameCounter%dc.ProcessEveryNFrames != 0 {
						selected = false
					}
				}
				work := frameWork{frame: frame, selected: selected}
				select {
				case detIn <- work:
				case <-gctx.Done():
					frame.Close()
					return nil
				}
			}
		}
	})

	// Stage 2: Detector, only for selected frames.
	g.Go(func() error {
		defer close(embIn)
		defer gate.Close()
		for {
			select {
			case <-gctx.Done():
				return nil
			case work, ok := <-detIn:
				if !ok {
					return nil
				}
				if work.selected {
					dc := s.loadDetectionConfig()
					start := time.Now()
					dets, err := s.deps.Detector.Detect(work.frame.Mat, detect.Config{
						MinConfidence:    dc.MinConfidence,
						MinFaceSizePx:    dc.MinFaceSizePx,
						MaxFacesPerFrame: dc.MaxFacesPerFrame,
					})
					telemetry.DetectorLatency.WithLabelValues(cam.ID).Observe(time.Since(start).Seconds())
					if err != nil {
						s.deps.Log.Errorw("pipeline: detect", "error", err, "camera_id", cam.ID)
					} else {
						work.detections = dets
					}
				}
				select {
				case embIn <- work:
				case <-gctx.Done():
					work.frame.Close()
					return nil
				}
			}
		}
	})

	// Stage 3: Embedder + Matcher, then the Recording Controller sees
	// this exact frame with its final detected/not-detected outcome.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				drainAndClose(embIn, drainDeadline)
				return nil
			case work, ok := <-embIn:
				if !ok {
					return nil
				}
				s.processDetections(work, recCtrl)
			}
		}
	})

	task := &cameraTask{
		cameraID: cam.ID,
		source:   source,
		recCtrl:  recCtrl,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.mu.Lock()
	s.cameras[cam.ID] = task
	s.mu.Unlock()

	go func() {
		if err := g.Wait(); err != nil && gctx.Err() == nil {
			s.deps.Log.Errorw("pipeline: camera task graph ended with error", "error", err, "camera_id", cam.ID)
		}
		recCtrl.Close(time.Now())
		close(task.done)
	}()

	return nil
}

// watchState polls the Frame Source's state and dropped-frame count at
// a modest rate, persisting state transitions via CameraRepo.SetStatus
// (implementing the capture.StateObserver contract spec.md §4.4
// assigns to the Supervisor) and mirroring the delta in dropped frames
// onto telemetry.FramesDropped. Polling (rather than a callback) keeps
// every capture.Source backend's constructor free of an observer
// parameter.
func (s *Supervisor) watchState(ctx context.Context, cameraID string, source capture.Source) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := capture.StateStarting
	var lastDropped int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if cur := source.State(); cur != last {
				last = cur
				if err := s.deps.Cameras.SetStatus(cameraID, cameraStatusFor(cur), time.Now()); err != nil {
					s.deps.Log.Errorw("pipeline: set camera status", "error", err, "camera_id", cameraID)
				}
			}
			if dropped := source.Dropped(); dropped > lastDropped {
				telemetry.FramesDropped.WithLabelValues(cameraID).Add(float64(dropped - lastDropped))
				lastDropped = dropped
			}
		}
	}
}

func cameraStatusFor(st capture.State) store.CameraStatus {
	switch st {
	case capture.StateRunning:
		return store.CameraStatusActive
	case capture.StateDegraded:
		return store.CameraStatusDisconnected
	case capture.StateFailed, capture.StateStopped:
		return store.CameraStatusError
	default:
		return store.CameraStatusInactive
	}
}

func (s *Supervisor) loadDetectionConfig() store.DetectionConfig {
	settings, err := s.deps.Settings.Load()
	if err != nil {
		s.deps.Log.Warnw("pipeline: load settings, using defaults", "error", err)
		return store.DefaultSettings().Detection
	}
	return settings.Detection
}

func (s *Supervisor) processDetections(work frameWork, recCtrl *recording.Controller) {
	detected := false
	for _, d := range work.detections {
		crop, err := detect.Crop(work.frame.Mat, d.BBox)
		if err != nil {
			continue
		}
		embedStart := time.Now()
		emb, err := s.deps.Embedder.Embed(crop, d.Landmarks)
		telemetry.EmbedderLatency.WithLabelValues(work.frame.CameraID).Observe(time.Since(embedStart).Seconds())
		if err != nil {
			crop.Close()
			s.deps.Log.Errorw("pipeline: embed", "error", err, "camera_id", work.frame.CameraID)
			continue
		}
		detected = true
		recordingID, recordingStartedAt, hasRecording := recCtrl.Active()
		in := match.Input{
			CameraID: work.frame.CameraID,
			FrameSeq: work.frame.Sequence,
			BBox: store.BoundingBox{
				X: d.BBox.Min.X, Y: d.BBox.Min.Y,
				W: d.BBox.Dx(), H: d.BBox.Dy(),
			},
			Embedding:          emb,
			Crop:               crop,
			Landmarks:          d.Landmarks,
			DetectedAt:         work.frame.CapturedAt,
			RecordingID:        recordingID,
			RecordingStartedAt: recordingStartedAt,
			HasRecording:       hasRecording,
		}
		if err := s.deps.Matcher.Resolve(in); err != nil {
			s.deps.Log.Errorw("pipeline: resolve match", "error", err, "camera_id", work.frame.CameraID)
		}
		crop.Close()
	}
	recCtrl.Ingest(work.frame, detected)
	work.frame.Close()
}

// StopCamera cancels the camera's whole task graph at once (Frame
// Source and every downstream stage share one context) and waits up to
// drainDeadline plus one second for it to finish. Frames still queued
// between stages are closed without being run through detection,
// matching or the Recording Controller; there is no phase in which the
// source is stopped while downstream stages keep processing.
func (s *Supervisor) StopCamera(cameraID string) error {
	s.mu.Lock()
	task, ok := s.cameras[cameraID]
	if ok {
		delete(s.cameras, cameraID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("pipeline: camera %s not running", cameraID)
	}

	task.cancel()
	select {
	case <-task.done:
	case <-time.After(drainDeadline + time.Second):
		s.deps.Log.Warnw("pipeline: camera task graph did not drain in time, abandoning", "camera_id", cameraID)
	}
	return task.source.Close()
}

// Shutdown stops every running camera task graph.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.cameras))
	for id := range s.cameras {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		if err := s.StopCamera(id); err != nil {
			s.deps.Log.Warnw("pipeline: shutdown stop camera", "error", err, "camera_id", id)
		}
	}
}

func newSource(cam store.Camera, log *zap.SugaredLogger) (capture.Source, error) {
	switch cam.Kind {
	case store.CameraKindBuiltin, store.CameraKindUSB, store.CameraKindFile, store.CameraKindScreen:
		return gocvsrc.New(cam.ID, cam.Kind, cam.ConnectionDescriptor, cam.FPS, log), nil
	case store.CameraKindRTSP:
		return rtspsrc.New(cam.ID, cam.ConnectionDescriptor, cam.ResolutionW, cam.ResolutionH, log), nil
	case store.CameraKindBrowser:
		return pushsrc.New(cam.ID, pushIdleTimeout), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown camera kind %q", cam.Kind)
	}
}

func recordingConfigFrom(settings store.Settings, targetFPS int) recording.Config {
	rc := settings.Recording
	return recording.Config{
		DetectionTriggered: rc.DetectionTriggered,
		PreTriggerSecs:     rc.PreTriggerSecs,
		PostTriggerSecs:    rc.PostTriggerSecs,
		MaxSegmentSecs:     rc.MaxSegmentSecs,
		TargetFPS:          targetFPS,
	}
}

func drainAndClose(ch <-chan frameWork, deadline time.Duration) {
	timeout := time.After(deadline)
	for {
		select {
		case work, ok := <-ch:
			if !ok {
				return
			}
			work.frame.Close()
		case <-timeout:
			return
		}
	}
}
