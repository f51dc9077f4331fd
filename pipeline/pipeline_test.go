package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/capture"
	"github.com/watchtower-nvr/core/events"
	"github.com/watchtower-nvr/core/store"
)

func TestCameraStatusForMapsEveryState(t *testing.T) {
	require.Equal(t, store.CameraStatusActive, cameraStatusFor(capture.StateRunning))
	require.Equal(t, store.CameraStatusDisconnected, cameraStatusFor(capture.StateDegraded))
	require.Equal(t, store.CameraStatusError, cameraStatusFor(capture.StateFailed))
	require.Equal(t, store.CameraStatusError, cameraStatusFor(capture.StateStopped))
	require.Equal(t, store.CameraStatusInactive, cameraStatusFor(capture.StateStarting))
}

type fakeCameraRepo struct {
	cams     map[string]store.Camera
	statuses []store.CameraStatus
}

func newFakeCameraRepo(cams ...store.Camera) *fakeCameraRepo {
	m := make(map[string]store.Camera)
	for _, c := range cams {
		m[c.ID] = c
	}
	return &fakeCameraRepo{cams: m}
}

func (f *fakeCameraRepo) ByID(id string) (*store.Camera, error) {
	c, ok := f.cams[id]
	if !ok {
		return nil, store.NewError("ByID", store.KindNotFound, nil)
	}
	return &c, nil
}
func (f *fakeCameraRepo) All() ([]store.Camera, error) { return nil, nil }
func (f *fakeCameraRepo) ListEnabled() ([]store.Camera, error) {
	var out []store.Camera
	for _, c := range f.cams {
		if c.IsEnabled {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeCameraRepo) Save(c *store.Camera) error   { f.cams[c.ID] = *c; return nil }
func (f *fakeCameraRepo) Update(c *store.Camera) error { f.cams[c.ID] = *c; return nil }
func (f *fakeCameraRepo) Delete(id string) error       { delete(f.cams, id); return nil }
func (f *fakeCameraRepo) SetStatus(id string, status store.CameraStatus, at time.Time) error {
	f.statuses = append(f.statuses, status)
	return nil
}

var _ store.CameraRepo = (*fakeCameraRepo)(nil)

type fakeRecordingRepo struct{}

func (f *fakeRecordingRepo) Insert(r *store.Recording) error { return nil }
func (f *fakeRecordingRepo) Finalize(id string, endedAt time.Time, durationMS, bytes, frames int64, hasDetections bool) error {
	return nil
}
func (f *fakeRecordingRepo) MarkInterrupted(id string, endedAt time.Time, durationMS, bytes, frames int64) error {
	return nil
}
func (f *fakeRecordingRepo) OldestCompleted(limit int) ([]store.Recording, error) { return nil, nil }
func (f *fakeRecordingRepo) Delete(id string) error                              { return nil }
func (f *fakeRecordingRepo) OpenForCamera(cameraID string) (*store.Recording, error) {
	return nil, store.NewError("OpenForCamera", store.KindNotFound, nil)
}

var _ store.RecordingRepo = (*fakeRecordingRepo)(nil)

type fakeObjectStore struct{}

func (f *fakeObjectStore) Put(key string, data []byte) (string, error) { return key, nil }
func (f *fakeObjectStore) OpenForAppend(key string) (io.WriteCloser, error) {
	return nil, nil
}
func (f *fakeObjectStore) Delete(key string) error           { return nil }
func (f *fakeObjectStore) SizeOf(key string) (int64, error) { return 0, nil }

type fakeSettings struct{ s store.Settings }

func (f fakeSettings) Load() (store.Settings, error) { return f.s, nil }

func TestStartCameraRejectsDuplicateID(t *testing.T) {
	cam := store.Camera{ID: "cam-1", Name: "front", Kind: store.CameraKindBrowser, IsEnabled: true, FPS: 5}
	deps := Deps{
		Cameras:    newFakeCameraRepo(cam),
		Recordings: &fakeRecordingRepo{},
		Objects:    &fakeObjectStore{},
		Settings:   fakeSettings{s: store.DefaultSettings()},
		Bus:        events.NewBus(nil),
		Log:        zap.NewNop().Sugar(),
	}
	sup := NewSupervisor(deps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sup.StartCamera(ctx, cam))
	err := sup.StartCamera(ctx, cam)
	require.Error(t, err)

	require.NoError(t, sup.StopCamera(cam.ID))
}

func TestStopCameraUnknownIDReturnsError(t *testing.T) {
	deps := Deps{
		Cameras:    newFakeCameraRepo(),
		Recordings: &fakeRecordingRepo{},
		Objects:    &fakeObjectStore{},
		Settings:   fakeSettings{s: store.DefaultSettings()},
		Bus:        events.NewBus(nil),
		Log:        zap.NewNop().Sugar(),
	}
	sup := NewSupervisor(deps)
	require.Error(t, sup.StopCamera("does-not-exist"))
}
