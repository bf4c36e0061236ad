// Package persist is the host's on-disk state: the call-detail-record
// log and the last-known-good modem flash configuration mirror, both
// over a pure-Go sqlite driver so the host stays CGO-free.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gorm.io/driver/sqlite"
	_ "modernc.org/sqlite"
)

// DB wraps the GORM database connection.
type DB struct {
	db     *gorm.DB
	logger *logger.Logger
}

// Config holds database configuration.
type Config struct {
	Path string // Path to SQLite database file
}

// Open creates (or opens) the sqlite-backed store and runs migrations for
// CallRecord and FlashSnapshot.
func Open(cfg Config, log *logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	if cfg.Path == "" {
		cfg.Path = "dvmhost.db"
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gormLog := gormlogger.New(
		&gormLogAdapter{log: log},
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        cfg.Path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(&CallRecord{}, &FlashSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("persist store opened", logger.String("path", cfg.Path))

	return &DB{db: db, logger: log}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the underlying GORM database instance, for callers that
// need a repository type this package doesn't expose directly.
func (d *DB) GetDB() *gorm.DB {
	return d.db
}

// gormLogAdapter adapts the host logger to GORM's logger.Writer interface.
type gormLogAdapter struct {
	log *logger.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}
