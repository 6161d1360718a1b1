// Package matcher resolves watchlist items against the live Radarr library
// and merges the personal and friends' watchlists into one de-duplicated set.
package matcher

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"watchlistarr/internal/models"
)

// NormalizeIMDBID trims and lowercases an IMDb id for use as a merge/index key
func NormalizeIMDBID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Merge combines the personal and friends' watchlists. Items are keyed by
// normalized IMDb id when present, else by rating key; personal items win on
// collisions and friends' items are only added under keys the personal list
// doesn't claim. Items with no usable key are dropped.
func Merge(personal, friends []models.WatchlistItem, logger *logrus.Logger) []models.WatchlistItem {
	merged := make([]models.WatchlistItem, 0, len(personal)+len(friends))
	position := make(map[string]int)

	for _, item := range personal {
		key := mergeKey(item)
		if key == "" {
			logger.WithField("title", item.Title).Warn("Dropping watchlist item with no identifiers")
			continue
		}
		if i, ok := position[key]; ok {
			merged[i] = item
			continue
		}
		position[key] = len(merged)
		merged = append(merged, item)
	}

	for _, item := range friends {
		key := NormalizeIMDBID(item.IMDBId)
		if key == "" {
			logger.WithField("title", item.Title).Warn("Dropping friends' watchlist item with no IMDb id")
			continue
		}
		if _, ok := position[key]; ok {
			continue
		}
		position[key] = len(merged)
		merged = append(merged, item)
	}

	return merged
}

func mergeKey(item models.WatchlistItem) string {
	if imdb := NormalizeIMDBID(item.IMDBId); imdb != "" {
		return imdb
	}
	return item.RatingKey
}

// BuildIndex indexes Radarr records by normalized IMDb id. Records without
// one are unindexed and only reachable through the TMDB scan in Resolve.
func BuildIndex(movies []models.Movie) map[string]*models.Movie {
	index := make(map[string]*models.Movie, len(movies))
	for i := range movies {
		imdb := NormalizeIMDBID(movies[i].IMDBId)
		if imdb == "" {
			continue
		}
		index[imdb] = &movies[i]
	}
	return index
}

// Resolve finds the Radarr record for a watchlist item: exact IMDb lookup in
// the index first, then a linear TMDB scan (Radarr exposes no TMDB index),
// else nil.
func Resolve(item models.WatchlistItem, index map[string]*models.Movie, movies []models.Movie) *models.Movie {
	if imdb := NormalizeIMDBID(item.IMDBId); imdb != "" {
		if movie, ok := index[imdb]; ok {
			return movie
		}
		return nil
	}

	tmdb := strings.TrimSpace(item.TMDBId)
	if tmdb == "" {
		return nil
	}
	for i := range movies {
		if movies[i].TMDBId != 0 && strconv.FormatInt(movies[i].TMDBId, 10) == tmdb {
			return &movies[i]
		}
	}
	return nil
}
