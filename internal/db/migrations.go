package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/suPer8Hu/gopherchat-bot/internal/analytics"
	"github.com/suPer8Hu/gopherchat-bot/internal/chat"
	"gorm.io/gorm"
)

func migrator(gdb *gorm.DB) *gormigrate.Gormigrate {
	m := gormigrate.New(gdb, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "0001_conversations",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&chat.User{}, &chat.Chat{}, &chat.Message{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&chat.Message{}, &chat.Chat{}, &chat.User{})
			},
		},
		{
			ID: "0002_bot_events",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&analytics.EventRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&analytics.EventRecord{})
			},
		},
	})

	// fresh database: create the latest schema in one step
	m.InitSchema(func(tx *gorm.DB) error {
		return tx.AutoMigrate(&chat.User{}, &chat.Chat{}, &chat.Message{}, &analytics.EventRecord{})
	})
	return m
}

// Migrate brings the schema up to date.
func Migrate(gdb *gorm.DB) error {
	return migrator(gdb).Migrate()
}

