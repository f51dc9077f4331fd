package recording_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/capture"
	"github.com/watchtower-nvr/core/events"
	"github.com/watchtower-nvr/core/recording"
	"github.com/watchtower-nvr/core/store"
)

type fakeRecordingRepo struct {
	open        *store.Recording
	inserted    []*store.Recording
	interrupted []string
}

func (f *fakeRecordingRepo) Insert(r *store.Recording) error {
	f.inserted = append(f.inserted, r)
	return nil
}
func (f *fakeRecordingRepo) Finalize(id string, endedAt time.Time, durationMS, bytes, frames int64, hasDetections bool) error {
	return nil
}
func (f *fakeRecordingRepo) MarkInterrupted(id string, endedAt time.Time, durationMS, bytes, frames int64) error {
	f.interrupted = append(f.interrupted, id)
	return nil
}
func (f *fakeRecordingRepo) OldestCompleted(limit int) ([]store.Recording, error) { return nil, nil }
func (f *fakeRecordingRepo) Delete(id string) error                              { return nil }
func (f *fakeRecordingRepo) OpenForCamera(cameraID string) (*store.Recording, error) {
	if f.open == nil {
		return nil, store.NewError("OpenForCamera", store.KindNotFound, nil)
	}
	return f.open, nil
}

var _ store.RecordingRepo = (*fakeRecordingRepo)(nil)

func newFrame(cameraID string, at time.Time) capture.Frame {
	return capture.Frame{
		Mat:        gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3),
		CameraID:   cameraID,
		CapturedAt: at,
	}
}

func TestIngestBuffersRingWhileIdleWithoutDetection(t *testing.T) {
	repo := &fakeRecordingRepo{}
	bus := events.NewBus(nil)
	cfg := recording.Config{DetectionTriggered: true, PreTriggerSecs: 2, TargetFPS: 5, PostTriggerSecs: 10, MaxSegmentSecs: 300}
	ctrl := recording.New("cam-1", repo, nil, bus, cfg, zap.NewNop().Sugar())

	base := time.Unix(1000, 0)
	for i := 0; i < 20; i++ {
		f := newFrame("cam-1", base.Add(time.Duration(i)*200*time.Millisecond))
		ctrl.Ingest(f, false)
		f.Close()
	}

	require.Equal(t, recording.StateIdle, ctrl.State())
	require.Equal(t, cfg.PreTriggerSecs*cfg.TargetFPS, ctrl.RingLen(), "ring buffer must drop-oldest at capacity")
	require.Empty(t, repo.inserted, "no detection means no recording should ever start")
}

func TestRecoverInterruptedMarksOpenRecording(t *testing.T) {
	repo := &fakeRecordingRepo{
		open: &store.Recording{
			ID:        "rec-1",
			CameraID:  "cam-1",
			StartedAt: time.Unix(1000, 0),
			Status:    store.RecordingStatusRecording,
		},
	}
	bus := events.NewBus(nil)
	ctrl := recording.New("cam-1", repo, nil, bus, recording.Config{}, zap.NewNop().Sugar())

	err := ctrl.RecoverInterrupted(time.Unix(1100, 0))
	require.NoError(t, err)
	require.Equal(t, []string{"rec-1"}, repo.interrupted)
}

func TestRecoverInterruptedNoOpenRecordingIsNotError(t *testing.T) {
	repo := &fakeRecordingRepo{}
	bus := events.NewBus(nil)
	ctrl := recording.New("cam-1", repo, nil, bus, recording.Config{}, zap.NewNop().Sugar())

	require.NoError(t, ctrl.RecoverInterrupted(time.Unix(1100, 0)))
	require.Empty(t, repo.interrupted)
}
