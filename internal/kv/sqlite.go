package kv

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pettrail/pettrail/internal/db"
)

// SQLiteStore persists entries in the local store's kv_entries table.
type SQLiteStore struct {
	store *db.Store
}

// NewSQLiteStore creates a kv store over the local database.
func NewSQLiteStore(store *db.Store) *SQLiteStore {
	return &SQLiteStore{store: store}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry db.KVEntry
	err := s.store.DB.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	entry := db.KVEntry{Key: key, Value: value}
	return s.store.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return s.store.DB.WithContext(ctx).Delete(&db.KVEntry{}, "key = ?", key).Error
}

func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.store.DB.WithContext(ctx).
		Model(&db.KVEntry{}).
		Where("key LIKE ?", prefix+"%").
		Order("key").
		Pluck("key", &keys).Error
	return keys, err
}
