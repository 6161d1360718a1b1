package models

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetByIdentifiersMatchesAnyIdentifier(t *testing.T) {
	db := openTestDB(t)

	keys := MediaKeys{
		RatingKey: "12345",
		IMDBId:    "tt0133093",
		TMDBId:    "603",
		Title:     "The Matrix",
		Year:      1999,
	}
	if err := db.SaveMetadata(keys); err != nil {
		t.Fatalf("SaveMetadata failed: %v", err)
	}

	cases := []struct {
		name                     string
		ratingKey, imdbID, tmdbID string
	}{
		{"by rating key", "12345", "", ""},
		{"by imdb id", "", "tt0133093", ""},
		{"by tmdb id", "", "", "603"},
		{"wrong rating key but right imdb", "99999", "tt0133093", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := db.GetByIdentifiers(tc.ratingKey, tc.imdbID, tc.tmdbID)
			if err != nil {
				t.Fatalf("GetByIdentifiers failed: %v", err)
			}
			if record == nil {
				t.Fatal("Expected a record, got nil")
			}
			if record.Title != "The Matrix" || record.Year != 1999 {
				t.Errorf("Unexpected record: %+v", record)
			}
		})
	}
}

func TestGetByIdentifiersNoIdentifiers(t *testing.T) {
	db := openTestDB(t)

	record, err := db.GetByIdentifiers("", "  ", "")
	if err != nil {
		t.Fatalf("GetByIdentifiers failed: %v", err)
	}
	if record != nil {
		t.Errorf("Expected nil record with no identifiers, got %+v", record)
	}
}

func TestGetByIdentifiersNotFound(t *testing.T) {
	db := openTestDB(t)

	record, err := db.GetByIdentifiers("", "tt0000001", "")
	if err != nil {
		t.Fatalf("GetByIdentifiers failed: %v", err)
	}
	if record != nil {
		t.Errorf("Expected nil record for unknown id, got %+v", record)
	}
}

func TestMarkSearchedCreatesAndUpdates(t *testing.T) {
	db := openTestDB(t)

	keys := MediaKeys{IMDBId: "tt0111161", Title: "The Shawshank Redemption", Year: 1994}

	// First sight via the search path inserts a record
	if err := db.MarkSearched(keys); err != nil {
		t.Fatalf("MarkSearched failed: %v", err)
	}

	record, err := db.GetByIdentifiers("", "tt0111161", "")
	if err != nil {
		t.Fatalf("GetByIdentifiers failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected record after MarkSearched")
	}
	if record.LastSearch == nil {
		t.Error("LastSearch should be set")
	}
	if record.LastProcessed != nil {
		t.Error("LastProcessed should not be set")
	}

	// A later processing touch updates the same record in place
	keys.TMDBId = "278"
	if err := db.MarkProcessed(keys); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	updated, err := db.GetByIdentifiers("", "", "278")
	if err != nil {
		t.Fatalf("GetByIdentifiers failed: %v", err)
	}
	if updated == nil {
		t.Fatal("Expected record reachable by the newly attached tmdb id")
	}
	if updated.ID != record.ID {
		t.Errorf("Expected update in place, got new record %d vs %d", updated.ID, record.ID)
	}
	if updated.LastSearch == nil || updated.LastProcessed == nil {
		t.Error("Both timestamps should be set after search + process")
	}

	count, err := db.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 record, got %d", count)
	}
}

func TestSaveMetadataDoesNotTouchTimestamps(t *testing.T) {
	db := openTestDB(t)

	keys := MediaKeys{IMDBId: "tt0068646", Title: "The Godfather", Year: 1972}
	if err := db.MarkSearched(keys); err != nil {
		t.Fatalf("MarkSearched failed: %v", err)
	}

	keys.Title = "The Godfather (1972)"
	if err := db.SaveMetadata(keys); err != nil {
		t.Fatalf("SaveMetadata failed: %v", err)
	}

	record, err := db.GetByIdentifiers("", "tt0068646", "")
	if err != nil {
		t.Fatalf("GetByIdentifiers failed: %v", err)
	}
	if record.Title != "The Godfather (1972)" {
		t.Errorf("Title not updated: %q", record.Title)
	}
	if record.LastSearch == nil {
		t.Error("SaveMetadata must not clear LastSearch")
	}
}
