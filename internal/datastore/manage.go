// manage.go: schema migration and GORM logger setup.
package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      level,
			Colorful:      true,
		},
	)
}

// performAutoMigration runs GORM automigration for every entity and logs the
// outcome for the given backend.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&Recording{},
		&ProcessingRecord{},
		&DetectedEvent{},
		&ProcessingLogEntry{},
		&DetectionParameterSet{},
		&Artifact{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		getLogger().Debug("database schema migrated", "type", dbType, "connection", connectionInfo)
	}
	return nil
}
