package database

import (
	"errors"
	"time"

	"github.com/vinay-511/Code-collab/internal/runs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeRunLanguages = "2026-10-01_normalize_run_languages"

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

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeRunLanguages, apply: normalizeRunLanguages},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeRunLanguages lowercases language codes recorded before the proxy
// started normalizing them, so per-language queries group correctly.
func normalizeRunLanguages(db *gorm.DB) error {
	return db.Model(&runs.ExecutionRun{}).
		Where("language <> lower(trim(language))").
		Update("language", gorm.Expr("lower(trim(language))")).Error
}
