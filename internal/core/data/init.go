package data

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table managed by this package.
func Models() []interface{} {
	return []interface{}{
		&Account{},
		&Membership{},
		&Vote{},
		&Game{},
		&TallySnapshot{},
		&Counter{},
	}
}

// Dialector picks the gorm driver for engine. dataSource is a file path for
// sqlite and a DSN for postgres.
func Dialector(engine, dataSource string) (gorm.Dialector, error) {
	switch strings.ToLower(engine) {
	case "sqlite":
		return sqlite.Open(dataSource), nil
	case "postgres":
		return postgres.Open(dataSource), nil
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", engine)
	}
}

// Initialize connects to the database and migrates the schema.
func Initialize(dialector gorm.Dialector, debug bool) (*gorm.DB, error) {
	// By default only log errors but enable full SQL query prints-to-console with debug mode
	log := logger.Default.LogMode(logger.Error)
	if debug {
		log = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("error auto migrating db: %w", err)
	}

	return db, nil
}

func Shutdown(db *gorm.DB) error {
	database, err := db.DB()
	if err != nil {
		return fmt.Errorf("error while getting current connection: %w", err)
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("error while closing database connection: %w", err)
	}
	return nil
}
