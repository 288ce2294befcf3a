package database

import (
	"context"
	"fmt"
	"time"
	"turn-service/internal/model"
	"turn-service/pkg/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the configured database, applies pool settings and runs migrations
func InitDB(dbConfig *config.DBConfig) (*gorm.DB, error) {
	db, err := Open(dbConfig)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Open connects without migrating
func Open(dbConfig *config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbConfig.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(dbConfig.GetDSN())
	case config.DriverPostgres:
		dialector = postgres.New(postgres.Config{
			DSN:                  dbConfig.GetDSN(),
			PreferSimpleProtocol: true, // Disables implicit prepared statement usage
		})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConfig.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(dbConfig.LogLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database object: %w", err)
	}

	if dbConfig.Driver == config.DriverSQLite {
		// SQLite has a single writer; one connection keeps transactions from
		// failing with SQLITE_BUSY and keeps in-memory databases alive.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return db, nil
	}

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return db, nil
}

// Migrate runs migrations for the queue models
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database is not initialized")
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	return nil
}

// Ping checks that the underlying connection pool can reach the database
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
