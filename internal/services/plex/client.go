// Package plex fetches the remote watchlist from the Plex metadata provider:
// a paginated summary listing plus a per-item metadata fetch that carries the
// external ids, and an RSS feed for friends' watchlists.
package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// PageSize is the container size requested per watchlist page
const PageSize = 20

// Client handles communication with the remote Plex server
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new remote Plex client
func NewClient(baseURL, token string, timeout time.Duration, logger *logrus.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("plex base URL is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("plex token is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// WatchlistEntry is one summary row of the paginated watchlist listing
type WatchlistEntry struct {
	RatingKey string
	Title     string
	Year      int
}

// mediaContainer models the XML envelope of both the listing and the
// detailed metadata responses.
type mediaContainer struct {
	XMLName   xml.Name       `xml:"MediaContainer"`
	TotalSize int            `xml:"totalSize,attr"`
	Videos    []videoElement `xml:"Video"`
}

type videoElement struct {
	RatingKey string        `xml:"ratingKey,attr"`
	Title     string        `xml:"title,attr"`
	Year      int           `xml:"year,attr"`
	Guids     []guidElement `xml:"Guid"`
}

type guidElement struct {
	ID string `xml:"id,attr"`
}

// ListWatchlistPage fetches one page of the personal watchlist. It returns
// the page's entries and the total item count reported by the server.
func (c *Client) ListWatchlistPage(ctx context.Context, offset int) ([]WatchlistEntry, int, error) {
	params := url.Values{}
	params.Set("X-Plex-Token", c.token)
	params.Set("X-Plex-Container-Start", strconv.Itoa(offset))
	params.Set("X-Plex-Container-Size", strconv.Itoa(PageSize))

	container, err := c.fetchContainer(ctx, "/library/sections/watchlist/all", params)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]WatchlistEntry, 0, len(container.Videos))
	for _, video := range container.Videos {
		entries = append(entries, WatchlistEntry{
			RatingKey: video.RatingKey,
			Title:     video.Title,
			Year:      video.Year,
		})
	}
	return entries, container.TotalSize, nil
}

// GUIDs holds the external identifiers extracted from detailed metadata
type GUIDs struct {
	IMDB string
	TMDB string
}

// GetMetadataGUIDs fetches detailed metadata for one rating key and extracts
// its imdb:// and tmdb:// identifiers. This is the expensive per-item call
// the identity cache exists to avoid.
func (c *Client) GetMetadataGUIDs(ctx context.Context, ratingKey string) (*GUIDs, error) {
	params := url.Values{}
	params.Set("X-Plex-Token", c.token)

	container, err := c.fetchContainer(ctx, "/library/metadata/"+url.PathEscape(ratingKey), params)
	if err != nil {
		return nil, err
	}
	if len(container.Videos) == 0 {
		return nil, fmt.Errorf("no Video element in metadata for rating key %s", ratingKey)
	}

	guids := &GUIDs{}
	for _, guid := range container.Videos[0].Guids {
		switch {
		case strings.HasPrefix(guid.ID, "imdb://"):
			guids.IMDB = strings.TrimPrefix(guid.ID, "imdb://")
		case strings.HasPrefix(guid.ID, "tmdb://"):
			guids.TMDB = strings.TrimPrefix(guid.ID, "tmdb://")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"rating_key": ratingKey,
		"imdb":       guids.IMDB,
		"tmdb":       guids.TMDB,
	}).Debug("Extracted GUIDs from metadata")
	return guids, nil
}

func (c *Client) fetchContainer(ctx context.Context, path string, params url.Values) (*mediaContainer, error) {
	fullURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("plex returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var container mediaContainer
	if err := xml.NewDecoder(resp.Body).Decode(&container); err != nil {
		return nil, fmt.Errorf("failed to parse container XML: %w", err)
	}
	return &container, nil
}
