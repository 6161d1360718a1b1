package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store backing the identity cache
type Database struct {
	store *bolthold.Store
}

// NewDatabase opens (or creates) the identity cache store
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the store
func (db *Database) Close() error {
	return db.store.Close()
}

// GetByIdentifiers retrieves a cache record matching ANY of the supplied
// identifiers. Empty identifiers are ignored; with none supplied it returns
// (nil, nil). Not finding a record is not an error.
func (db *Database) GetByIdentifiers(ratingKey, imdbID, tmdbID string) (*CacheRecord, error) {
	ratingKey = strings.TrimSpace(ratingKey)
	imdbID = strings.TrimSpace(imdbID)
	tmdbID = strings.TrimSpace(tmdbID)

	var query *bolthold.Query
	for field, value := range map[string]string{
		"RatingKey": ratingKey,
		"IMDBId":    imdbID,
		"TMDBId":    tmdbID,
	} {
		if value == "" {
			continue
		}
		if query == nil {
			query = bolthold.Where(field).Eq(value)
		} else {
			query = query.Or(bolthold.Where(field).Eq(value))
		}
	}
	if query == nil {
		return nil, nil
	}

	var record CacheRecord
	err := db.store.FindOne(&record, query)
	if err == bolthold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	return &record, nil
}

// SaveMetadata upserts the basic fields of a record without touching the
// search/processed timestamps.
func (db *Database) SaveMetadata(keys MediaKeys) error {
	record, err := db.GetByIdentifiers(keys.RatingKey, keys.IMDBId, keys.TMDBId)
	if err != nil {
		return err
	}

	if record == nil {
		record = &CacheRecord{CreatedAt: time.Now()}
	}
	applyKeys(record, keys)
	record.UpdatedAt = time.Now()

	if record.ID == 0 {
		return db.store.Insert(bolthold.NextSequence(), record)
	}
	return db.store.Update(record.ID, record)
}

// MarkSearched records a search timestamp for the record matching the keys,
// inserting one if none exists.
func (db *Database) MarkSearched(keys MediaKeys) error {
	now := time.Now()
	return db.markTimestamp(keys, func(r *CacheRecord) { r.LastSearch = &now })
}

// MarkProcessed records a processing timestamp for the record matching the
// keys, inserting one if none exists.
func (db *Database) MarkProcessed(keys MediaKeys) error {
	now := time.Now()
	return db.markTimestamp(keys, func(r *CacheRecord) { r.LastProcessed = &now })
}

// Count returns the number of cached records
func (db *Database) Count() (int, error) {
	count, err := db.store.Count(&CacheRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count cache records: %w", err)
	}
	return count, nil
}

func (db *Database) markTimestamp(keys MediaKeys, set func(*CacheRecord)) error {
	record, err := db.GetByIdentifiers(keys.RatingKey, keys.IMDBId, keys.TMDBId)
	if err != nil {
		return err
	}

	if record == nil {
		record = &CacheRecord{CreatedAt: time.Now()}
	}
	applyKeys(record, keys)
	set(record)
	record.UpdatedAt = time.Now()

	if record.ID == 0 {
		return db.store.Insert(bolthold.NextSequence(), record)
	}
	return db.store.Update(record.ID, record)
}

func applyKeys(record *CacheRecord, keys MediaKeys) {
	if v := strings.TrimSpace(keys.RatingKey); v != "" {
		record.RatingKey = v
	}
	if v := strings.TrimSpace(keys.IMDBId); v != "" {
		record.IMDBId = v
	}
	if v := strings.TrimSpace(keys.TMDBId); v != "" {
		record.TMDBId = v
	}
	if keys.Title != "" {
		record.Title = keys.Title
	}
	if keys.Year != 0 {
		record.Year = keys.Year
	}
}
