package radarr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"watchlistarr/internal/models"
)

// GetAllMovies retrieves every movie record from Radarr
func (c *Client) GetAllMovies(ctx context.Context) ([]models.Movie, error) {
	var movies []models.Movie
	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/movie", nil, &movies); err != nil {
		return nil, fmt.Errorf("failed to get movies: %w", err)
	}

	c.logger.WithField("count", len(movies)).Debug("Retrieved movies from Radarr")
	return movies, nil
}

// AddMovie creates a new movie record and returns the record Radarr assigned
func (c *Client) AddMovie(ctx context.Context, payload *models.Movie) (*models.Movie, error) {
	var created models.Movie
	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/movie", payload, &created); err != nil {
		return nil, fmt.Errorf("failed to add movie %q: %w", payload.Title, err)
	}
	return &created, nil
}

// UpdateMovie submits a full replacement record for an existing movie
func (c *Client) UpdateMovie(ctx context.Context, id int64, payload *models.Movie) (*models.Movie, error) {
	var updated models.Movie
	path := fmt.Sprintf("/api/v3/movie/%d", id)
	if err := c.doRequest(ctx, http.MethodPut, path, payload, &updated); err != nil {
		return nil, fmt.Errorf("failed to update movie %d: %w", id, err)
	}
	return &updated, nil
}

// TriggerSearch issues a MoviesSearch command for one movie
func (c *Client) TriggerSearch(ctx context.Context, id int64) error {
	payload := map[string]interface{}{
		"name":     "MoviesSearch",
		"movieIds": []int64{id},
	}

	var result map[string]interface{}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/command", payload, &result); err != nil {
		return fmt.Errorf("failed to trigger search for movie %d: %w", id, err)
	}
	return nil
}

// LookupByIMDB resolves an IMDb id to a TMDB id through Radarr's lookup
// endpoint. The endpoint returns either a single object or a list depending
// on the Radarr version.
func (c *Client) LookupByIMDB(ctx context.Context, imdbID string) (int64, error) {
	path := "/api/v3/movie/lookup/imdb?imdbId=" + url.QueryEscape(imdbID)

	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return 0, fmt.Errorf("lookup failed for %s: %w", imdbID, err)
	}

	type lookupResult struct {
		TMDBId int64 `json:"tmdbId"`
	}

	var single lookupResult
	if err := json.Unmarshal(raw, &single); err == nil && single.TMDBId != 0 {
		return single.TMDBId, nil
	}

	var list []lookupResult
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0].TMDBId != 0 {
		return list[0].TMDBId, nil
	}

	return 0, fmt.Errorf("lookup for %s returned no usable TMDB id", imdbID)
}
