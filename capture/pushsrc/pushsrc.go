// Package pushsrc implements capture.Source for the browser camera
// kind: an inbound-only source fed by PushFrame calls from an external
// HTTP handler (out of core scope per spec.md §1). Its state machine
// elides reconnection and instead fails after T_push_idle without a
// push, per spec.md §4.4.
package pushsrc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/capture"
)

// Source accepts frames pushed in from outside the pipeline.
type Source struct {
	cameraID   string
	pushIdle   time.Duration
	frames     chan capture.Frame
	state      atomic.Int32
	seq        atomic.Uint64
	dropped    atomic.Int64
	lastPushed atomic.Int64 // unix nanos
}

var _ capture.Source = (*Source)(nil)

// New constructs a pushsrc.Source. pushIdle is T_push_idle: if no
// PushFrame call arrives within this window, Run returns and the
// source is marked StateFailed.
func New(cameraID string, pushIdle time.Duration) *Source {
	s := &Source{
		cameraID: cameraID,
		pushIdle: pushIdle,
		frames:   make(chan capture.Frame, 4),
	}
	s.state.Store(int32(capture.StateStarting))
	s.lastPushed.Store(time.Now().UnixNano())
	return s
}

func (s *Source) Frames() <-chan capture.Frame { return s.frames }
func (s *Source) State() capture.State         { return capture.State(s.state.Load()) }

// Dropped reports how many frames this source has drop-newested at its
// bounded outbound channel.
func (s *Source) Dropped() int64 { return s.dropped.Load() }

// PushFrame is called by the external HTTP handler for each frame
// received from the browser client. mat is cloned internally and takes
// ownership is not transferred (the caller may close its own copy).
func (s *Source) PushFrame(mat gocv.Mat) {
	s.lastPushed.Store(time.Now().UnixNano())
	frame := capture.Frame{
		Mat:        mat.Clone(),
		CameraID:   s.cameraID,
		Sequence:   s.seq.Add(1),
		CapturedAt: time.Now(),
	}
	select {
	case s.frames <- frame:
	default:
		s.dropped.Add(1)
		frame.Close()
	}
}

// Run polls for push staleness until ctx is cancelled or T_push_idle
// elapses without a push.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.frames)
	s.state.Store(int32(capture.StateRunning))

	ticker := time.NewTicker(s.pushIdle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.state.Store(int32(capture.StateStopped))
			return ctx.Err()
		case <-ticker.C:
			last := time.Unix(0, s.lastPushed.Load())
			if time.Since(last) > s.pushIdle {
				s.state.Store(int32(capture.StateFailed))
				return fmt.Errorf("pushsrc[%s]: no push received for %s", s.cameraID, s.pushIdle)
			}
		}
	}
}

func (s *Source) Close() error { return nil }
