package datastore

import (
	"fmt"

	"github.com/zoosonics/sawcall-go/internal/conf"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	mc := settings.Output.MySQL
	if mc.Username == "" || mc.Database == "" || mc.Host == "" || mc.Port == "" {
		return fmt.Errorf("incomplete MySQL configuration: username, database, host, and port are required")
	}
	return nil
}

// Open sets up the MySQL database connection and migrates the schema.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	mc := store.Settings.Output.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		mc.Username, mc.Password, mc.Host, mc.Port, mc.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger(store.Settings.Debug)})
	if err != nil {
		getLogger().Error("failed to open MySQL database",
			"host", mc.Host, "port", mc.Port, "database", mc.Database, "error", err)
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	connectionInfo := fmt.Sprintf("%s@%s:%s/%s", mc.Username, mc.Host, mc.Port, mc.Database)
	return performAutoMigration(db, store.Settings.Debug, "MySQL", connectionInfo)
}

// Close releases the underlying MySQL connections.
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying database handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("closing MySQL database: %w", err)
	}
	return nil
}
