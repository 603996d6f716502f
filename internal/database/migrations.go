package database

import (
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeRemovedStatus = "2025-03-01_normalize_removed_status"
	migrationBackfillPartyVersions  = "2025-03-08_backfill_party_versions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var migrations = []migrationDefinition{
	{name: migrationNormalizeRemovedStatus, apply: normalizeRemovedStatus},
	{name: migrationBackfillPartyVersions, apply: backfillPartyVersions},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, migration := range migrations {
		applied, err := migrationApplied(db, migration.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// Older deployments persisted no-shows as "removed".
func normalizeRemovedStatus(db *gorm.DB) error {
	return db.Model(&waitlist.Party{}).
		Where("status = ?", waitlist.LegacyStatusRemoved).
		Update("status", waitlist.StatusNoShow).Error
}

func backfillPartyVersions(db *gorm.DB) error {
	return db.Model(&waitlist.Party{}).
		Where("version IS NULL OR version < ?", 1).
		Update("version", 1).Error
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var records []migrationRecord
	result := db.Where("name = ?", name).Limit(1).Find(&records)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
