package models

import "time"

// CacheRecord is one row of the identity cache. A record is reachable by any
// of its three identifiers; the timestamps track the last automatic search
// and the last reconciliation touch.
type CacheRecord struct {
	ID        uint64 `boltholdKey:"ID"`
	RatingKey string `boltholdIndex:"RatingKey"`
	IMDBId    string `boltholdIndex:"IMDBId"`
	TMDBId    string `boltholdIndex:"TMDBId"`

	Title string
	Year  int

	LastSearch    *time.Time
	LastProcessed *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
