package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ Store = (*SQLStore)(nil)

// SessionValue is one persisted key.
type SessionValue struct {
	Key       string `gorm:"column:name;primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (SessionValue) TableName() string {
	return "session_values"
}

// SQLStore persists the durable scope in a SQL database through gorm.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens a SQLite database at dsn and migrates the table.
func OpenSQLStore(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("[OpenSQLStore] sqlite dsn required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("[OpenSQLStore] gorm.Open: %w", err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an existing gorm handle.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("[NewSQLStore] database handle required")
	}
	if err := db.AutoMigrate(&SessionValue{}); err != nil {
		return nil, fmt.Errorf("[NewSQLStore] AutoMigrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var row SessionValue
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("[SQLStore.Get] %s: %w", key, err)
	}
	return row.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	row := SessionValue{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("[SQLStore.Set] %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("name IN ?", keys).Delete(&SessionValue{}).Error; err != nil {
		return fmt.Errorf("[SQLStore.Delete] %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
