package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/domain"
)

// Partial indexes gorm tags cannot express. Valid on Postgres and SQLite.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_system_alert_active_type ON system_alert (alert_type) WHERE active`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_message_undispatched ON outbox_message (created_at) WHERE sent_at IS NULL`,
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
