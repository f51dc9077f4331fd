package sqlitestore

import (
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/watchtower-nvr/core/store"
)

const settingsRowID = 1

// SettingsRepo persists the process-wide singleton Settings record as a
// JSON blob in a single row, grounded on database/database.go's
// key-value settings table.
type SettingsRepo struct {
	DB *gorm.DB
}

var _ store.SettingsRepo = (*SettingsRepo)(nil)

func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{DB: db}
}

// Load returns the persisted Settings, or store.DefaultSettings() if no
// row exists yet.
func (r *SettingsRepo) Load() (store.Settings, error) {
	var g gormSettings
	err := r.DB.First(&g, "id = ?", settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.DefaultSettings(), nil
	}
	if err != nil {
		return store.Settings{}, wrapGormErr("SettingsRepo.Load", err)
	}
	var s store.Settings
	if err := json.Unmarshal([]byte(g.Config), &s); err != nil {
		return store.Settings{}, store.NewError("SettingsRepo.Load", store.KindFatal, err)
	}
	return s, nil
}

func (r *SettingsRepo) Save(s store.Settings) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return store.NewError("SettingsRepo.Save", store.KindFatal, err)
	}
	g := gormSettings{ID: settingsRowID, Config: string(blob)}
	err = r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"config"}),
	}).Create(&g).Error
	if err != nil {
		return wrapGormErr("SettingsRepo.Save", err)
	}
	return nil
}
