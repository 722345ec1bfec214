package database

import (
	"errors"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationDefaultSocialExtraData = "2026-10-01_default_social_extra_data"
	migrationNormalizeEventTypes    = "2026-10-01_normalize_event_types"
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

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDefaultSocialExtraData, apply: defaultSocialExtraData},
		{name: migrationNormalizeEventTypes, apply: normalizeEventTypes},
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

// defaultSocialExtraData replaces empty claim snapshots with an empty JSON object.
func defaultSocialExtraData(db *gorm.DB) error {
	return db.Model(&accounts.SocialAccount{}).
		Where("extra_data = ''").
		Update("extra_data", "{}").Error
}

// normalizeEventTypes folds event types to their canonical lower case form
// and maps anything unknown to "other".
func normalizeEventTypes(db *gorm.DB) error {
	if err := db.Model(&events.Event{}).
		Where("event_type <> LOWER(TRIM(event_type))").
		Update("event_type", gorm.Expr("LOWER(TRIM(event_type))")).Error; err != nil {
		return err
	}
	return db.Model(&events.Event{}).
		Where("event_type NOT IN ?", []string{events.TypeMatch, events.TypeTraining, events.TypeTournament, events.TypeOther}).
		Update("event_type", events.TypeOther).Error
}
