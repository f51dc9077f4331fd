package sqlitestore

import (
	"time"

	"gorm.io/gorm"

	"github.com/watchtower-nvr/core/store"
)

type CameraRepo struct {
	DB *gorm.DB
}

var _ store.CameraRepo = (*CameraRepo)(nil)

func NewCameraRepo(db *gorm.DB) *CameraRepo {
	return &CameraRepo{DB: db}
}

func (r *CameraRepo) ByID(id string) (*store.Camera, error) {
	var g gormCamera
	if err := r.DB.First(&g, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr("CameraRepo.ByID", err)
	}
	return fromGormCamera(&g), nil
}

func (r *CameraRepo) All() ([]store.Camera, error) {
	var rows []gormCamera
	if err := r.DB.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, wrapGormErr("CameraRepo.All", err)
	}
	out := make([]store.Camera, 0, len(rows))
	for i := range rows {
		out = append(out, *fromGormCamera(&rows[i]))
	}
	return out, nil
}

func (r *CameraRepo) ListEnabled() ([]store.Camera, error) {
	var rows []gormCamera
	if err := r.DB.Where("is_enabled = ?", true).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, wrapGormErr("CameraRepo.ListEnabled", err)
	}
	out := make([]store.Camera, 0, len(rows))
	for i := range rows {
		out = append(out, *fromGormCamera(&rows[i]))
	}
	return out, nil
}

func (r *CameraRepo) Save(c *store.Camera) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if err := r.DB.Create(toGormCamera(c)).Error; err != nil {
		return wrapGormErr("CameraRepo.Save", err)
	}
	return nil
}

func (r *CameraRepo) Update(c *store.Camera) error {
	c.UpdatedAt = time.Now().UTC()
	result := r.DB.Model(&gormCamera{}).Where("id = ?", c.ID).Updates(toGormCamera(c))
	if result.Error != nil {
		return wrapGormErr("CameraRepo.Update", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("CameraRepo.Update", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *CameraRepo) Delete(id string) error {
	result := r.DB.Delete(&gormCamera{}, "id = ?", id)
	if result.Error != nil {
		return wrapGormErr("CameraRepo.Delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("CameraRepo.Delete", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}

// SetStatus updates observed camera status. status = active iff a Frame
// Source has produced a frame in the last T_live seconds; the caller
// (pipeline) is responsible for that liveness check, this just persists
// the outcome.
func (r *CameraRepo) SetStatus(id string, status store.CameraStatus, at time.Time) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if status == store.CameraStatusActive {
		updates["last_frame_at"] = at
	}
	result := r.DB.Model(&gormCamera{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return wrapGormErr("CameraRepo.SetStatus", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("CameraRepo.SetStatus", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}
