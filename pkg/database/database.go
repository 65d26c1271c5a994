package database

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db *gorm.DB

	migrateMu     sync.Mutex
	migrateModels []interface{}
)

// Database returns the process-wide handle set by Use.
func Database() *gorm.DB {
	if db == nil {
		panic("database not initialized")
	}
	return db
}

func Use(d *gorm.DB) {
	db = d
}

// GormConfig keeps every timestamp gorm writes in UTC.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// Open connects with one of the supported drivers.
func Open(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	d, err := gorm.Open(dialector, GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	slog.Info("[Database] Connected", "driver", driver)
	return d, nil
}

// RegisterAutoMigrateModels is called from model init functions.
func RegisterAutoMigrateModels(models ...interface{}) {
	migrateMu.Lock()
	defer migrateMu.Unlock()
	migrateModels = append(migrateModels, models...)
}

func AutoMigrate(d *gorm.DB) error {
	migrateMu.Lock()
	models := append([]interface{}(nil), migrateModels...)
	migrateMu.Unlock()

	if err := d.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	slog.Info("[Database] Migrated", "models", len(models))
	return nil
}
