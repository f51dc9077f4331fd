// Package gocvsrc implements capture.Source for camera kinds gocv can
// open directly: builtin, usb, file, and screen, grounded on the
// teacher's direct gocv.VideoCapture usage.
package gocvsrc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/capture"
	"github.com/watchtower-nvr/core/store"
)

// Source captures frames from a device index, file path, or screen
// descriptor via gocv.VideoCapture.
type Source struct {
	cameraID    string
	kind        store.CameraKind
	descriptor  string
	targetFPS   int
	backoff     capture.BackoffConfig
	tDegraded   time.Duration
	log         *zap.SugaredLogger

	frames  chan capture.Frame
	state   atomic.Int32
	seq     atomic.Uint64
	dropped atomic.Int64

	mu  sync.Mutex
	cap *gocv.VideoCapture
}

var _ capture.Source = (*Source)(nil)

// New constructs a gocvsrc.Source. descriptor is a device index ("0")
// for builtin/usb, a file path for file, or a platform screen
// descriptor for screen (opened the same way gocv treats any
// VideoCapture URI).
func New(cameraID string, kind store.CameraKind, descriptor string, targetFPS int, log *zap.SugaredLogger) *Source {
	s := &Source{
		cameraID:   cameraID,
		kind:       kind,
		descriptor: descriptor,
		targetFPS:  targetFPS,
		backoff:    capture.DefaultBackoffConfig(),
		tDegraded:  5 * time.Second,
		log:        log,
		frames:     make(chan capture.Frame, 4), // Q_frame=4, drop-newest
	}
	s.state.Store(int32(capture.StateStarting))
	return s
}

func (s *Source) Frames() <-chan capture.Frame { return s.frames }

func (s *Source) State() capture.State { return capture.State(s.state.Load()) }

// Dropped reports how many frames this source has drop-newested at its
// bounded outbound channel.
func (s *Source) Dropped() int64 { return s.dropped.Load() }

func (s *Source) setState(st capture.State) {
	s.state.Store(int32(st))
}

func (s *Source) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cp *gocv.VideoCapture
	var err error
	if idx, convErr := strconv.Atoi(s.descriptor); convErr == nil && (s.kind == store.CameraKindBuiltin || s.kind == store.CameraKindUSB) {
		cp, err = gocv.OpenVideoCapture(idx)
	} else {
		cp, err = gocv.VideoCaptureFile(s.descriptor)
	}
	if err != nil {
		return fmt.Errorf("gocvsrc: open %q: %w", s.descriptor, err)
	}
	if s.targetFPS > 0 {
		cp.Set(gocv.VideoCaptureFPS, float64(s.targetFPS))
	}
	s.cap = cp
	return nil
}

func (s *Source) closeCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap != nil {
		s.cap.Close()
		s.cap = nil
	}
}

// Run drives the capture loop, reconnecting with exponential backoff on
// read failure, until ctx is cancelled or N_retry consecutive
// reconnection attempts fail.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.frames)
	defer s.closeCapture()

	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(capture.StateStopped)
			return ctx.Err()
		}

		if err := s.open(); err != nil {
			attempt++
			if attempt > s.backoff.MaxRetries {
				s.setState(capture.StateFailed)
				return fmt.Errorf("gocvsrc[%s]: exceeded max reconnect attempts: %w", s.cameraID, err)
			}
			s.setState(capture.StateDegraded)
			delay := s.backoff.Delay(attempt)
			s.log.Warnw("capture open failed, backing off", "camera_id", s.cameraID, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				s.setState(capture.StateStopped)
				return ctx.Err()
			}
		}

		attempt = 0
		s.setState(capture.StateRunning)
		if err := s.readLoop(ctx); err != nil {
			s.log.Warnw("capture read loop ended, reconnecting", "camera_id", s.cameraID, "error", err)
			s.closeCapture()
			continue
		}
		s.setState(capture.StateStopped)
		return nil
	}
}

func (s *Source) readLoop(ctx context.Context) error {
	mat := gocv.NewMat()
	defer mat.Close()

	lastFrame := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !s.cap.Read(&mat) || mat.Empty() {
			if time.Since(lastFrame) > s.tDegraded {
				s.setState(capture.StateDegraded)
				return fmt.Errorf("no frame for %s", s.tDegraded)
			}
			continue
		}
		lastFrame = time.Now()

		frame := capture.Frame{
			Mat:        mat.Clone(),
			CameraID:   s.cameraID,
			Sequence:   s.seq.Add(1),
			CapturedAt: lastFrame,
		}
		select {
		case s.frames <- frame:
		default:
			// drop-newest: the outbound channel is the only place
			// frames are dropped rather than backpressured.
			s.dropped.Add(1)
			frame.Close()
		}
	}
}

func (s *Source) Close() error {
	s.closeCapture()
	return nil
}
