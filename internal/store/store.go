// Package store provides the engine's persistence layer: a single
// opaque key/value table backing the fixture registry and preset
// store. The persistence format itself is not part of this engine's
// contract, so no relational schema is grown here — callers serialize
// their own JSON values under namespaced keys (e.g. "fixture:<id>").
package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite" // pure Go SQLite driver (no cgo required)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record is a single key/value row.
type Record struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Record) TableName() string { return "kv_store" }

// Config holds database configuration.
type Config struct {
	URL         string
	MaxIdleConn int
	MaxOpenConn int
	Debug       bool
}

// Store wraps a GORM connection scoped to the kv_store table.
type Store struct {
	db *gorm.DB
}

// Open establishes a connection and migrates the kv_store table.
func Open(cfg Config) (*Store, error) {
	dbPath := strings.TrimPrefix(cfg.URL, "file:")

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv_store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Printf("💾 Store connected: %s", dbPath)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the value for key, or ("", false) if no such key exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var rec Record
	result := s.db.WithContext(ctx).First(&rec, "key = ?", key)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, result.Error
	}
	return rec.Value, true, nil
}

// Set creates or overwrites the value for key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	rec := Record{Key: key, Value: value}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Delete removes key. Returns whether a row was actually removed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&Record{}, "key = ?", key)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByPrefix returns all records whose key starts with prefix, ordered by key.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]Record, error) {
	var recs []Record
	result := s.db.WithContext(ctx).
		Where("key LIKE ? ESCAPE '\\'", escapeLikePrefix(prefix)+"%").
		Order("key ASC").
		Find(&recs)
	return recs, result.Error
}

// escapeLikePrefix escapes SQL LIKE wildcard characters in a literal prefix.
func escapeLikePrefix(prefix string) string {
	replacer := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return replacer.Replace(prefix)
}
