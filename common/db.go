package common

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDb opens the sqlite database at dbFile. Foreign keys are enforced by
// the services inside transactions, not by the schema.
func ConnectDb(dbFile string, log zerolog.Logger) (*gorm.DB, error) {
	if dbFile == "" {
		return nil, fmt.Errorf("database_path not set")
	}

	db, err := gorm.Open(sqlite.Open(dbFile), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   NewGormLogger(log, logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", dbFile, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection keeps transactions from
	// tripping over SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	log.Info().Str("path", dbFile).Msg("opened sqlite db")
	return db, nil
}
