package radarr

import (
	"fmt"

	"watchlistarr/internal/models"
)

// NeedsUpdate reports whether the proposed record differs materially from the
// current one. Scalar fields are compared as strings to tolerate numeric vs
// string drift between call sites; tags compare as unordered sets. Radarr's
// PUT is idempotent but not free, so a false here elides the call entirely.
func NeedsUpdate(current, proposed *models.Movie) bool {
	fields := [][2]interface{}{
		{current.Monitored, proposed.Monitored},
		{current.QualityProfileID, proposed.QualityProfileID},
		{current.RootFolderPath, proposed.RootFolderPath},
		{current.Path, proposed.Path},
		{current.MinimumAvailability, proposed.MinimumAvailability},
	}
	for _, pair := range fields {
		if fmt.Sprint(pair[0]) != fmt.Sprint(pair[1]) {
			return true
		}
	}

	if !sameTagSet(current.Tags, proposed.Tags) {
		return true
	}

	return searchForMovie(current.AddOptions) != searchForMovie(proposed.AddOptions)
}

func sameTagSet(a, b []int64) bool {
	set := make(map[int64]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	other := make(map[int64]bool, len(b))
	for _, t := range b {
		other[t] = true
	}
	if len(set) != len(other) {
		return false
	}
	for t := range set {
		if !other[t] {
			return false
		}
	}
	return true
}

func searchForMovie(opts *models.AddOptions) bool {
	return opts != nil && opts.SearchForMovie
}
