// Package sqlitestore implements storage.SignatureStorage and
// storage.RecordStorage on top of gorm + go-sqlite3, the default backend
// at $HOME/.llmux/signatures.db.
package sqlitestore

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/soilSpoon/llmux/internal/domain/signature/storage"
)

// cacheRow is the gorm model backing the SignatureCache table.
type cacheRow struct {
	SessionID    string `gorm:"primaryKey;column:session_id"`
	CompositeKey string `gorm:"primaryKey;column:composite_key"`
	Signature    string
	Family       string
	Timestamp    time.Time
}

func (cacheRow) TableName() string { return "signature_cache_entries" }

// recordRow is the gorm model backing the SignatureStore table, primary
// keyed by the signature string.
type recordRow struct {
	Signature string `gorm:"primaryKey"`
	ProjectID string
	Provider  string
	Endpoint  string
	Account   string
	CreatedAt time.Time
}

func (recordRow) TableName() string { return "signature_records" }

// Store is a gorm-backed implementation of both storage.SignatureStorage
// and storage.RecordStorage, sharing a single SQLite file.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the SQLite database at path and migrates
// both tables.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&cacheRow{}, &recordRow{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenPostgres opens the same schema against a Postgres DSN. No
// configuration setting selects it; the gateway opens the default
// embedded SQLite file via Open.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&cacheRow{}, &recordRow{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(sessionID, compositeKey string) (storage.CacheEntry, bool, error) {
	var row cacheRow
	err := s.db.Where("session_id = ? AND composite_key = ?", sessionID, compositeKey).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return storage.CacheEntry{}, false, nil
	}
	if err != nil {
		return storage.CacheEntry{}, false, err
	}
	return toCacheEntry(row), true, nil
}

func (s *Store) Set(entry storage.CacheEntry) error {
	row := cacheRow{
		SessionID:    entry.SessionID,
		CompositeKey: entry.CompositeKey,
		Signature:    entry.Signature,
		Family:       entry.Family,
		Timestamp:    entry.Timestamp,
	}
	return s.db.Save(&row).Error
}

func (s *Store) Delete(sessionID, compositeKey string) error {
	return s.db.Where("session_id = ? AND composite_key = ?", sessionID, compositeKey).Delete(&cacheRow{}).Error
}

func (s *Store) ClearSession(sessionID string) error {
	return s.db.Where("session_id = ?", sessionID).Delete(&cacheRow{}).Error
}

func (s *Store) GetSessionEntries(sessionID string) ([]storage.CacheEntry, error) {
	var rows []cacheRow
	if err := s.db.Where("session_id = ?", sessionID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]storage.CacheEntry, len(rows))
	for i, row := range rows {
		out[i] = toCacheEntry(row)
	}
	return out, nil
}

func (s *Store) GetSessionEntryCount(sessionID string) (int, error) {
	var count int64
	err := s.db.Model(&cacheRow{}).Where("session_id = ?", sessionID).Count(&count).Error
	return int(count), err
}

func (s *Store) CleanupExpired(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	res := s.db.Where("timestamp < ?", cutoff).Delete(&cacheRow{})
	return int(res.RowsAffected), res.Error
}

func (s *Store) SaveRecord(r storage.Record) error {
	row := recordRow{
		Signature: r.Signature,
		ProjectID: r.ProjectID,
		Provider:  r.Provider,
		Endpoint:  r.Endpoint,
		Account:   r.Account,
		CreatedAt: r.CreatedAt,
	}
	return s.db.Save(&row).Error
}

func (s *Store) GetRecord(signature string) (storage.Record, bool, error) {
	var row recordRow
	err := s.db.Where("signature = ?", signature).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return storage.Record{}, false, nil
	}
	if err != nil {
		return storage.Record{}, false, err
	}
	return storage.Record{
		Signature: row.Signature,
		ProjectID: row.ProjectID,
		Provider:  row.Provider,
		Endpoint:  row.Endpoint,
		Account:   row.Account,
		CreatedAt: row.CreatedAt,
	}, true, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toCacheEntry(row cacheRow) storage.CacheEntry {
	return storage.CacheEntry{
		SessionID:    row.SessionID,
		CompositeKey: row.CompositeKey,
		Signature:    row.Signature,
		Family:       row.Family,
		Timestamp:    row.Timestamp,
	}
}
