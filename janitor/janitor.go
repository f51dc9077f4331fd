// Package janitor is the Storage Janitor (C11): a periodic task that
// measures storage usage against Settings.Recording.MaxStorageBytes
// and, when enabled, evicts the oldest completed recordings to bring
// usage back under the target.
//
// Grounded on database/person_db.go's squirrel usage for the dynamic
// SUM query, and workers/image_worker.go's ticker-driven background
// task shape for the run loop.
package janitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/events"
	"github.com/watchtower-nvr/core/objectstore"
	"github.com/watchtower-nvr/core/store"
	"github.com/watchtower-nvr/core/telemetry"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SettingsSource lets the Janitor read Settings fresh on every tick.
type SettingsSource interface {
	Load() (store.Settings, error)
}

// evictionBatchSize bounds how many candidates OldestCompleted returns
// per pass, so one tick doesn't hold the recordings table for an
// unbounded scan.
const evictionBatchSize = 50

// Janitor scans storage usage on a timer and evicts recordings when
// needed. sqlDB is the raw connection behind the same *gorm.DB the
// rest of the store package uses (via (*gorm.DB).DB()), for the
// dynamic SUM(size_bytes) query squirrel builds.
type Janitor struct {
	sqlDB      *sql.DB
	recordings store.RecordingRepo
	objects    objectstore.Store
	settings   SettingsSource
	bus        *events.Bus
	log        *zap.SugaredLogger
}

func New(sqlDB *sql.DB, recordings store.RecordingRepo, objects objectstore.Store, settings SettingsSource, bus *events.Bus, log *zap.SugaredLogger) *Janitor {
	return &Janitor{sqlDB: sqlDB, recordings: recordings, objects: objects, settings: settings, bus: bus, log: log}
}

// Run blocks, ticking every intervalSecs (spec.md default 60) until
// ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, intervalSecs int, now func() time.Time) {
	if intervalSecs <= 0 {
		intervalSecs = 60
	}
	ticker := time.NewTicker(time.Duration(intervalSecs) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Tick(now()); err != nil {
				j.log.Errorw("janitor: tick failed", "error", err)
			}
		}
	}
}

// Tick runs one storage-check-and-evict pass.
func (j *Janitor) Tick(now time.Time) error {
	settings, err := j.settings.Load()
	if err != nil {
		return fmt.Errorf("janitor: load settings: %w", err)
	}
	rc := settings.Recording
	if rc.MaxStorageBytes <= 0 {
		return nil
	}

	used, err := j.usedBytes()
	if err != nil {
		return fmt.Errorf("janitor: measure usage: %w", err)
	}
	usedPercent := 100 * float64(used) / float64(rc.MaxStorageBytes)
	telemetry.StorageUsedPercent.Set(usedPercent)

	if usedPercent >= 90 {
		j.bus.Publish(events.StorageWarning(events.StorageWarningPayload{
			UsedPercent: usedPercent,
			Threshold:   90,
			Message:     fmt.Sprintf("storage at %.1f%% of max_storage_bytes", usedPercent),
		}, now))
	}

	if !rc.AutoCleanup || usedPercent < 95 {
		return nil
	}

	targetBytes := int64(rc.CleanupTargetPercent / 100 * float64(rc.MaxStorageBytes))
	minRetention := time.Duration(rc.MinRetentionDays) * 24 * time.Hour

	return j.evict(now, used, targetBytes, minRetention)
}

func (j *Janitor) evict(now time.Time, used, targetBytes int64, minRetention time.Duration) error {
	for used > targetBytes {
		candidates, err := j.recordings.OldestCompleted(evictionBatchSize)
		if err != nil {
			return fmt.Errorf("janitor: oldest completed: %w", err)
		}
		if len(candidates) == 0 {
			j.log.Warnw("janitor: usage above target but no more eligible recordings", "used_bytes", used, "target_bytes", targetBytes)
			return nil
		}

		evictedAny := false
		for _, rec := range candidates {
			if now.Sub(rec.StartedAt) < minRetention {
				continue
			}
			if err := j.recordings.Delete(rec.ID); err != nil {
				j.log.Errorw("janitor: delete recording row", "error", err, "recording_id", rec.ID)
				continue
			}
			// Row deleted before file: an orphaned file after a crash
			// here is tolerated and swept on the next cycle, per
			// spec.md §4.11.
			if err := j.objects.Delete(rec.FileRef); err != nil {
				j.log.Warnw("janitor: delete recording file", "error", err, "file_ref", rec.FileRef)
			}
			used -= rec.SizeBytes
			telemetry.StorageBytesReclaimed.WithLabelValues(rec.CameraID).Add(float64(rec.SizeBytes))
			evictedAny = true
			j.log.Infow("janitor: evicted recording", "recording_id", rec.ID, "size_bytes", rec.SizeBytes)
			if used <= targetBytes {
				break
			}
		}
		if !evictedAny {
			j.log.Warnw("janitor: all oldest-completed candidates are within min_retention_days, cannot reach target", "used_bytes", used, "target_bytes", targetBytes)
			return nil
		}
	}
	return nil
}

// usedBytes sums recordings.size_bytes for every non-deleted row.
// Snapshot bytes (identities.thumbnail, sightings.snapshot_ref) are
// not tracked with a byte count in the durable schema and are not
// included; see DESIGN.md for why.
func (j *Janitor) usedBytes() (int64, error) {
	sqlStr, args, err := psql.
		Select("COALESCE(SUM(size_bytes), 0)").
		From("recordings").
		Where(sq.NotEq{"status": string(store.RecordingStatusDeleting)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("janitor: build usage query: %w", err)
	}
	var total int64
	if err := j.sqlDB.QueryRow(sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("janitor: query usage: %w", err)
	}
	return total, nil
}
