package janitor_test

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/events"
	"github.com/watchtower-nvr/core/janitor"
	"github.com/watchtower-nvr/core/store"
	"github.com/watchtower-nvr/core/store/sqlitestore"
)

type fakeSettings struct{ s store.Settings }

func (f fakeSettings) Load() (store.Settings, error) { return f.s, nil }

type fakeObjectStore struct{ deleted []string }

func (f *fakeObjectStore) Put(key string, data []byte) (string, error) { return key, nil }
func (f *fakeObjectStore) OpenForAppend(key string) (io.WriteCloser, error) {
	return nil, nil
}
func (f *fakeObjectStore) Delete(key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
func (f *fakeObjectStore) SizeOf(key string) (int64, error) { return 0, nil }

func setup(t *testing.T) (*sqlitestore.RecordingRepo, *janitor.Janitor, *fakeObjectStore, *events.Bus) {
	t.Helper()
	log := zap.NewNop().Sugar()
	db, err := sqlitestore.Open(":memory:", log)
	require.NoError(t, err)

	cameras := sqlitestore.NewCameraRepo(db)
	require.NoError(t, cameras.Save(&store.Camera{ID: "cam-1", Name: "front", Kind: store.CameraKindFile, ConnectionDescriptor: "x", IsEnabled: true}))

	recordings := sqlitestore.NewRecordingRepo(db)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	objects := &fakeObjectStore{}
	bus := events.NewBus(nil)
	settings := fakeSettings{s: store.Settings{Recording: store.RecordingConfig{
		MaxStorageBytes:      1000,
		AutoCleanup:          true,
		CleanupTargetPercent: 50,
		MinRetentionDays:     0,
	}}}
	j := janitor.New(sqlDB, recordings, objects, settings, bus, log)
	return recordings, j, objects, bus
}

func insertCompleted(t *testing.T, recordings *sqlitestore.RecordingRepo, id string, sizeBytes int64, startedAt time.Time) {
	t.Helper()
	require.NoError(t, recordings.Insert(&store.Recording{
		ID:        id,
		CameraID:  "cam-1",
		FileRef:   "recordings/" + id + ".avi",
		Status:    store.RecordingStatusRecording,
		StartedAt: startedAt,
	}))
	require.NoError(t, recordings.Finalize(id, startedAt.Add(time.Minute), 60000, sizeBytes, 100, false))
}

func TestTickEvictsOldestUntilBelowTarget(t *testing.T) {
	recordings, j, objects, _ := setup(t)
	base := time.Unix(1_700_000_000, 0)

	insertCompleted(t, recordings, "rec-1", 400, base)
	insertCompleted(t, recordings, "rec-2", 400, base.Add(time.Hour))
	insertCompleted(t, recordings, "rec-3", 400, base.Add(2*time.Hour))

	err := j.Tick(base.Add(3 * time.Hour))
	require.NoError(t, err)

	require.Contains(t, objects.deleted, "recordings/rec-1.avi")
	require.Len(t, objects.deleted, 2, "should stop evicting once usage <= cleanup_target_percent")
}

func TestTickEmitsStorageWarningWithoutEvicting(t *testing.T) {
	recordings, j, objects, bus := setup(t)
	base := time.Unix(1_700_000_000, 0)
	ch, unsub := bus.Subscribe("test")
	defer unsub()

	insertCompleted(t, recordings, "rec-1", 920, base)

	err := j.Tick(base.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, objects.deleted, "90-95% usage warns but does not evict")

	select {
	case env := <-ch:
		require.NotNil(t, env.Event)
		require.Equal(t, events.TypeStorageWarning, env.Event.Type)
	default:
		t.Fatal("expected a StorageWarning event")
	}
}

func TestTickBelowThresholdDoesNothing(t *testing.T) {
	recordings, j, objects, bus := setup(t)
	base := time.Unix(1_700_000_000, 0)
	ch, unsub := bus.Subscribe("test")
	defer unsub()

	insertCompleted(t, recordings, "rec-1", 100, base)

	require.NoError(t, j.Tick(base.Add(time.Hour)))
	require.Empty(t, objects.deleted)
	select {
	case <-ch:
		t.Fatal("no event expected below the warning threshold")
	default:
	}
}
