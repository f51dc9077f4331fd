// Package capture is the Frame Source (C4): a per-camera task producing
// a lazy sequence of decoded frames at a target rate, regardless of
// camera kind.
package capture

import (
	"context"
	"time"

	"gocv.io/x/gocv"
)

// State is a Frame Source's lifecycle state (spec.md §4.4).
type State int

const (
	StateStarting State = iota
	StateRunning
	StateDegraded
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Frame is one decoded frame plus the metadata downstream stages and the
// Recording Controller need.
type Frame struct {
	Mat        gocv.Mat
	CameraID   string
	Sequence   uint64
	CapturedAt time.Time
}

// Close releases the frame's backing Mat. Every stage that terminates a
// frame's lifetime (drops it, or has copied what it needs) must call
// this exactly once.
func (f Frame) Close() error {
	return f.Mat.Close()
}

// Clone deep-copies the frame's Mat, for holders (the Recording
// Controller's pre-trigger ring buffer) that must outlive the original
// frame's owner.
func (f Frame) Clone() Frame {
	return Frame{
		Mat:        f.Mat.Clone(),
		CameraID:   f.CameraID,
		Sequence:   f.Sequence,
		CapturedAt: f.CapturedAt,
	}
}

// Source is a per-camera Frame Source, implemented per camera kind by
// capture/gocvsrc, capture/rtspsrc, and capture/pushsrc.
type Source interface {
	// Run drives the capture loop until ctx is cancelled or the source
	// enters StateFailed. It closes the Frames channel on return.
	Run(ctx context.Context) error
	// Frames is the outbound, bounded, drop-newest frame channel
	// (Q_frame=4 per spec.md §5).
	Frames() <-chan Frame
	// State returns the current lifecycle state.
	State() State
	// Dropped reports the running count of frames drop-newested at the
	// outbound channel, for telemetry.FramesDropped.
	Dropped() int64
	// Close releases any capture handle still held.
	Close() error
}

// StateObserver is implemented by callers (the Pipeline Supervisor) that
// want to react to state transitions, e.g. to call
// store.CameraRepo.SetStatus.
type StateObserver interface {
	OnStateChange(cameraID string, from, to State)
}
