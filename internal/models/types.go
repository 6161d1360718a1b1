package models

// Category represents the kind of media carried by a watchlist entry
type Category string

const (
	CategoryMovie Category = "movie"
	CategoryShow  Category = "show"
)

// WatchlistItem is one entry of the merged watchlist. Items from the friends'
// feed carry the Plex user id of whoever added them; personal items don't.
type WatchlistItem struct {
	Title        string
	RatingKey    string
	IMDBId       string
	TMDBId       string
	Year         int
	SourceUserID string
	Category     Category
}

// AddOptions mirrors Radarr's addOptions sub-object
type AddOptions struct {
	SearchForMovie bool `json:"searchForMovie"`
}

// Movie represents a full Radarr movie record. Radarr's API works on whole
// records only, so create and update payloads reuse this type.
type Movie struct {
	ID                  int64       `json:"id,omitempty"`
	Title               string      `json:"title"`
	IMDBId              string      `json:"imdbId,omitempty"`
	TMDBId              int64       `json:"tmdbId,omitempty"`
	QualityProfileID    int64       `json:"qualityProfileId"`
	RootFolderPath      string      `json:"rootFolderPath"`
	Path                string      `json:"path,omitempty"`
	Monitored           bool        `json:"monitored"`
	MinimumAvailability string      `json:"minimumAvailability"`
	SizeOnDisk          int64       `json:"sizeOnDisk,omitempty"`
	Tags                []int64     `json:"tags"`
	AddOptions          *AddOptions `json:"addOptions,omitempty"`
}

// HasTag reports whether the record carries the given tag id
func (m *Movie) HasTag(id int64) bool {
	for _, t := range m.Tags {
		if t == id {
			return true
		}
	}
	return false
}

// Tag is a Radarr tag
type Tag struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// MediaKeys carries the identifiers and basic fields common to watchlist items
// and Radarr records, for cache lookups and upserts.
type MediaKeys struct {
	RatingKey string
	IMDBId    string
	TMDBId    string
	Title     string
	Year      int
}
