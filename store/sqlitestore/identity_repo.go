package sqlitestore

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/watchtower-nvr/core/store"
)

// IdentityRepo implements store.IdentityRepo, grounded on
// repository/person_repository.go's error-wrapping style.
type IdentityRepo struct {
	DB *gorm.DB
}

var _ store.IdentityRepo = (*IdentityRepo)(nil)

func NewIdentityRepo(db *gorm.DB) *IdentityRepo {
	return &IdentityRepo{DB: db}
}

func wrapGormErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.NewError(op, store.KindNotFound, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.NewError(op, store.KindConflict, err)
	}
	return store.NewError(op, store.KindTransient, err)
}

func (r *IdentityRepo) ByID(id string) (*store.Identity, error) {
	var g gormIdentity
	if err := r.DB.First(&g, "id = ?", id).Error; err != nil {
		return nil, wrapGormErr("IdentityRepo.ByID", err)
	}
	out, err := fromGormIdentity(&g)
	if err != nil {
		return nil, store.NewError("IdentityRepo.ByID", store.KindFatal, err)
	}
	return out, nil
}

func (r *IdentityRepo) AllActive() ([]store.Identity, error) {
	var rows []gormIdentity
	if err := r.DB.Where("is_active = ?", true).Order("last_seen_at DESC").Find(&rows).Error; err != nil {
		return nil, wrapGormErr("IdentityRepo.AllActive", err)
	}
	out := make([]store.Identity, 0, len(rows))
	for i := range rows {
		id, err := fromGormIdentity(&rows[i])
		if err != nil {
			return nil, store.NewError("IdentityRepo.AllActive", store.KindFatal, err)
		}
		out = append(out, *id)
	}
	return out, nil
}

func (r *IdentityRepo) Save(newIdentity *store.Identity) error {
	now := time.Now().UTC()
	if newIdentity.CreatedAt.IsZero() {
		newIdentity.CreatedAt = now
	}
	newIdentity.UpdatedAt = now
	if newIdentity.FirstSeenAt.IsZero() {
		newIdentity.FirstSeenAt = now
	}
	if newIdentity.LastSeenAt.IsZero() {
		newIdentity.LastSeenAt = newIdentity.FirstSeenAt
	}
	if newIdentity.Classification == "" {
		newIdentity.Classification = store.ClassificationUnknown
	}

	g, err := toGormIdentity(newIdentity)
	if err != nil {
		return store.NewError("IdentityRepo.Save", store.KindFatal, err)
	}
	if err := r.DB.Create(g).Error; err != nil {
		return wrapGormErr("IdentityRepo.Save", err)
	}
	return nil
}

func (r *IdentityRepo) Update(existing *store.Identity) error {
	existing.UpdatedAt = time.Now().UTC()
	g, err := toGormIdentity(existing)
	if err != nil {
		return store.NewError("IdentityRepo.Update", store.KindFatal, err)
	}
	result := r.DB.Model(&gormIdentity{}).Where("id = ?", existing.ID).Updates(g)
	if result.Error != nil {
		return wrapGormErr("IdentityRepo.Update", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("IdentityRepo.Update", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *IdentityRepo) Delete(id string) error {
	// sightings cascade via ON DELETE CASCADE in the schema.
	result := r.DB.Delete(&gormIdentity{}, "id = ?", id)
	if result.Error != nil {
		return wrapGormErr("IdentityRepo.Delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("IdentityRepo.Delete", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}

// IncrementSighting is implemented as an atomic SQL increment (rather
// than a select-then-update) so it is safe under concurrent callers
// without a row lock, per spec.md §4.2.
func (r *IdentityRepo) IncrementSighting(id string, at time.Time) error {
	result := r.DB.Model(&gormIdentity{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sighting_count": gorm.Expr("sighting_count + 1"),
		"last_seen_at":   at,
		"updated_at":     time.Now().UTC(),
	})
	if result.Error != nil {
		return wrapGormErr("IdentityRepo.IncrementSighting", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.NewError("IdentityRepo.IncrementSighting", store.KindNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}
