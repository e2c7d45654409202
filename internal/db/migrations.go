package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: operation queue table
		{
			ID: "001_queued_operations",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&QueuedOperation{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("queued_operations")
			},
		},

		// Migration 002: key-value entries (summary cache persistence)
		{
			ID: "002_kv_entries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&KVEntry{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("kv_entries")
			},
		},
	})

	return m.Migrate()
}
