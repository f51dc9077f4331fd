package sqlitestore

import (
	"gorm.io/gorm"

	"github.com/watchtower-nvr/core/store"
)

type SightingRepo struct {
	DB *gorm.DB
}

var _ store.SightingRepo = (*SightingRepo)(nil)

func NewSightingRepo(db *gorm.DB) *SightingRepo {
	return &SightingRepo{DB: db}
}

func (r *SightingRepo) Insert(s *store.Sighting) error {
	if err := r.DB.Create(toGormSighting(s)).Error; err != nil {
		return wrapGormErr("SightingRepo.Insert", err)
	}
	return nil
}

func rangeScope(rng store.TimeRange) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !rng.From.IsZero() {
			db = db.Where("detected_at >= ?", rng.From)
		}
		if !rng.To.IsZero() {
			db = db.Where("detected_at <= ?", rng.To)
		}
		return db
	}
}

func (r *SightingRepo) ByIdentity(identityID string, rng store.TimeRange, limit, offset int) ([]store.Sighting, error) {
	var rows []gormSighting
	q := r.DB.Scopes(rangeScope(rng)).Where("identity_id = ?", identityID).Order("detected_at DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapGormErr("SightingRepo.ByIdentity", err)
	}
	return sightingsFromGorm(rows), nil
}

func (r *SightingRepo) ByCamera(cameraID string, rng store.TimeRange, limit, offset int) ([]store.Sighting, error) {
	var rows []gormSighting
	q := r.DB.Scopes(rangeScope(rng)).Where("camera_id = ?", cameraID).Order("detected_at DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapGormErr("SightingRepo.ByCamera", err)
	}
	return sightingsFromGorm(rows), nil
}

func (r *SightingRepo) ByTimeRange(rng store.TimeRange, limit, offset int) ([]store.Sighting, error) {
	var rows []gormSighting
	q := r.DB.Scopes(rangeScope(rng)).Order("detected_at DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapGormErr("SightingRepo.ByTimeRange", err)
	}
	return sightingsFromGorm(rows), nil
}

func sightingsFromGorm(rows []gormSighting) []store.Sighting {
	out := make([]store.Sighting, 0, len(rows))
	for i := range rows {
		out = append(out, *fromGormSighting(&rows[i]))
	}
	return out
}
