package sqlitestore

import (
	"time"

	"gorm.io/gorm"

	"github.com/watchtower-nvr/core/store"
)

type RecordingRepo struct {
	DB *gorm.DB
}

var _ store.RecordingRepo = (*RecordingRepo)(nil)

func NewRecordingRepo(db *gorm.DB) *RecordingRepo {
	return &RecordingRepo{DB: db}
}

func (r *RecordingRepo) Insert(rec *store.Recording) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if err := r.DB.Create(toGormRecording(rec)).Error; err != nil {
		return wrapGormErr("RecordingRepo.Insert", err)
	}
	return nil
}

func (r *RecordingRepo) Finalize(id string, endedAt time.Time, durationMS, bytes, frames int64, hasDetections bool) error {
	result := r.DB.Model(&gormRecording{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         string(store.RecordingStatusCompleted),
		"ended_at":       endedAt,
		"duration_ms":    durationMS,
		"size_bytes":     bytes,
		"frame_count":    frames,
		"has_detections": hasDetections,
	})
	if result.Error != nil {
		return wrapGormErr("RecordingRepo.Finalize", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("RecordingRepo.Finalize", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *RecordingRepo) MarkInterrupted(id string, endedAt time.Time, durationMS, bytes, frames int64) error {
	result := r.DB.Model(&gormRecording{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      string(store.RecordingStatusInterrupted),
		"ended_at":    endedAt,
		"duration_ms": durationMS,
		"size_bytes":  bytes,
		"frame_count": frames,
	})
	if result.Error != nil {
		return wrapGormErr("RecordingRepo.MarkInterrupted", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("RecordingRepo.MarkInterrupted", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *RecordingRepo) OldestCompleted(limit int) ([]store.Recording, error) {
	var rows []gormRecording
	q := r.DB.Where("status = ?", string(store.RecordingStatusCompleted)).Order("started_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapGormErr("RecordingRepo.OldestCompleted", err)
	}
	out := make([]store.Recording, 0, len(rows))
	for i := range rows {
		out = append(out, *fromGormRecording(&rows[i]))
	}
	return out, nil
}

func (r *RecordingRepo) Delete(id string) error {
	result := r.DB.Delete(&gormRecording{}, "id = ?", id)
	if result.Error != nil {
		return wrapGormErr("RecordingRepo.Delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("RecordingRepo.Delete", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}

// OpenForCamera returns the single recording with status=recording for
// cameraID, if any. Invariant (spec.md §3): at most one such row exists.
func (r *RecordingRepo) OpenForCamera(cameraID string) (*store.Recording, error) {
	var g gormRecording
	err := r.DB.Where("camera_id = ? AND status = ?", cameraID, string(store.RecordingStatusRecording)).First(&g).Error
	if err != nil {
		return nil, wrapGormErr("RecordingRepo.OpenForCamera", err)
	}
	return fromGormRecording(&g), nil
}
