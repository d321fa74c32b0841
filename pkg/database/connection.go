package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrDatabaseLocked indicates another engine process already owns the draft
// database. Fatal at startup.
var ErrDatabaseLocked = errors.New("database locked by another process")

type DB struct {
	*gorm.DB
}

// NewConnection opens the embedded store in write-ahead mode and claims the
// single-writer lock. A second process opening the same file fails with
// ErrDatabaseLocked rather than racing on the draft.
func NewConnection(path string, isDevelopment bool) (*DB, error) {
	logLevel := logger.Error
	if isDevelopment {
		logLevel = logger.Info
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=250&_txlock=immediate", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// A single connection holding an exclusive lock is the writer claim.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.Exec("PRAGMA locking_mode=EXCLUSIVE").Error; err != nil {
		return nil, fmt.Errorf("failed to set locking mode: %w", err)
	}
	// The exclusive lock is only taken on the first write; probe now so a
	// second process fails at startup instead of mid-draft.
	if err := db.Exec("CREATE TABLE IF NOT EXISTS writer_probe (id INTEGER PRIMARY KEY)").Error; err != nil {
		if isLockError(err) {
			return nil, ErrDatabaseLocked
		}
		return nil, fmt.Errorf("failed to claim writer lock: %w", err)
	}

	logrus.WithField("path", path).Info("Database connection established")

	return &DB{db}, nil
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "locked")
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
