package sqlitestore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/store"
	"github.com/watchtower-nvr/core/store/sqlitestore"
)

func openTestDB(t *testing.T) *sqlitestore.IdentityRepo {
	t.Helper()
	db, err := sqlitestore.Open(":memory:", zap.NewNop().Sugar())
	require.NoError(t, err)
	return sqlitestore.NewIdentityRepo(db)
}

func TestIdentityRepoSaveAndFetch(t *testing.T) {
	repo := openTestDB(t)
	id := &store.Identity{
		ID:             "id-1",
		Classification: store.ClassificationUnknown,
		Embedding:      []byte{1, 2, 3, 4},
		Tags:           []string{"gate", "front-door"},
		IsActive:       true,
	}
	require.NoError(t, repo.Save(id))

	got, err := repo.ByID("id-1")
	require.NoError(t, err)
	require.Equal(t, []string{"gate", "front-door"}, got.Tags)
	require.Equal(t, 0, got.SightingCount)
	require.False(t, got.FirstSeenAt.IsZero())

	_, err = repo.ByID("missing")
	require.Error(t, err)
	require.True(t, store.IsKind(err, store.KindNotFound))
}

func TestIdentityRepoIncrementSighting(t *testing.T) {
	repo := openTestDB(t)
	id := &store.Identity{ID: "id-2", Embedding: []byte{1, 2, 3, 4}, IsActive: true}
	require.NoError(t, repo.Save(id))

	now := time.Now().UTC()
	require.NoError(t, repo.IncrementSighting("id-2", now))
	require.NoError(t, repo.IncrementSighting("id-2", now.Add(time.Second)))

	got, err := repo.ByID("id-2")
	require.NoError(t, err)
	require.Equal(t, 2, got.SightingCount)
}

func TestIdentityRepoSaveThenIncrementMatchesSinglePersistedSighting(t *testing.T) {
	repo := openTestDB(t)
	id := &store.Identity{ID: "id-new", Embedding: []byte{1, 2, 3, 4}, SightingCount: 0, IsActive: true}
	require.NoError(t, repo.Save(id))
	require.NoError(t, repo.IncrementSighting("id-new", time.Now().UTC()))

	got, err := repo.ByID("id-new")
	require.NoError(t, err)
	require.Equal(t, 1, got.SightingCount, "one persisted sighting must leave sighting_count at 1, not 2")
}

func TestIdentityRepoAllActiveOrdering(t *testing.T) {
	repo := openTestDB(t)
	older := &store.Identity{ID: "older", Embedding: []byte{1, 2, 3, 4}, IsActive: true, LastSeenAt: time.Now().Add(-time.Hour)}
	newer := &store.Identity{ID: "newer", Embedding: []byte{1, 2, 3, 4}, IsActive: true, LastSeenAt: time.Now()}
	inactive := &store.Identity{ID: "inactive", Embedding: []byte{1, 2, 3, 4}, IsActive: false}
	require.NoError(t, repo.Save(older))
	require.NoError(t, repo.Save(newer))
	require.NoError(t, repo.Save(inactive))

	all, err := repo.AllActive()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "newer", all[0].ID)
	require.Equal(t, "older", all[1].ID)
}

func TestSettingsRepoDefaultsThenRoundTrip(t *testing.T) {
	db, err := sqlitestore.Open(":memory:", zap.NewNop().Sugar())
	require.NoError(t, err)
	repo := sqlitestore.NewSettingsRepo(db)

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, store.DefaultSettings(), loaded)

	loaded.Detection.MatchThreshold = 0.55
	require.NoError(t, repo.Save(loaded))

	again, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, 0.55, again.Detection.MatchThreshold)
}

func TestCameraAndSightingAndRecordingRepos(t *testing.T) {
	db, err := sqlitestore.Open(":memory:", zap.NewNop().Sugar())
	require.NoError(t, err)
	identities := sqlitestore.NewIdentityRepo(db)
	cameras := sqlitestore.NewCameraRepo(db)
	sightings := sqlitestore.NewSightingRepo(db)
	recordings := sqlitestore.NewRecordingRepo(db)

	require.NoError(t, identities.Save(&store.Identity{ID: "identity-1", Embedding: []byte{1, 2, 3, 4}, IsActive: true}))
	cam := &store.Camera{ID: "cam-1", Name: "Front Door", Kind: store.CameraKindRTSP, IsEnabled: true}
	require.NoError(t, cameras.Save(cam))

	enabled, err := cameras.ListEnabled()
	require.NoError(t, err)
	require.Len(t, enabled, 1)

	rec := &store.Recording{ID: "rec-1", CameraID: "cam-1", FileRef: "cam-1/seg-1.mp4", Status: store.RecordingStatusRecording, StartedAt: time.Now()}
	require.NoError(t, recordings.Insert(rec))

	open, err := recordings.OpenForCamera("cam-1")
	require.NoError(t, err)
	require.Equal(t, "rec-1", open.ID)

	require.NoError(t, recordings.Finalize("rec-1", time.Now(), 5000, 1024, 150, true))
	_, err = recordings.OpenForCamera("cam-1")
	require.Error(t, err)
	require.True(t, store.IsKind(err, store.KindNotFound))

	offset := int64(1200)
	sighting := &store.Sighting{
		ID:          "sighting-1",
		IdentityID:  "identity-1",
		CameraID:    "cam-1",
		Confidence:  0.92,
		BBox:        store.BoundingBox{X: 10, Y: 10, W: 40, H: 40},
		RecordingID: &rec.ID,
		RecordingOffsetMS: &offset,
		DetectedAt:  time.Now(),
	}
	require.NoError(t, sightings.Insert(sighting))

	byIdentity, err := sightings.ByIdentity("identity-1", store.TimeRange{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byIdentity, 1)
	require.Equal(t, "cam-1", byIdentity[0].CameraID)

	byCamera, err := sightings.ByCamera("cam-1", store.TimeRange{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byCamera, 1)
}
