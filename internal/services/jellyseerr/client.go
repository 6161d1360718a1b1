// Package jellyseerr resolves Plex user ids to display names through the
// Jellyseerr user listing. The mapping is best-effort: every failure yields
// an empty map so attribution falls back to manual overrides or the default.
package jellyseerr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Plex ids appear only inside the avatar URL, e.g.
// https://plex.tv/users/707f3dfacb151965/avatar?c=...
var avatarPlexID = regexp.MustCompile(`/users/([a-f0-9]+)/avatar`)

// Client handles communication with the Jellyseerr API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new Jellyseerr client. An empty URL or key yields a
// client whose FetchUserMapping always returns an empty map.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchUserMapping fetches all Jellyseerr users and builds a Plex user id →
// display name map. Returns an empty map on any failure.
func (c *Client) FetchUserMapping(ctx context.Context) map[string]string {
	mapping := make(map[string]string)
	if c.baseURL == "" || c.apiKey == "" {
		c.logger.Warn("Jellyseerr URL or API key not configured, skipping user mapping")
		return mapping
	}

	users, err := c.listUsers(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Failed to fetch users from Jellyseerr")
		return mapping
	}

	for _, user := range users {
		name := user.PlexUsername
		if name == "" {
			name = user.DisplayName
		}
		if name == "" {
			name = "unknown"
		}

		match := avatarPlexID.FindStringSubmatch(user.Avatar)
		if match == nil {
			continue
		}
		mapping[match[1]] = name
	}

	c.logger.WithField("count", len(mapping)).Info("Built Jellyseerr user mapping")
	return mapping
}

type user struct {
	Avatar       string `json:"avatar"`
	PlexUsername string `json:"plexUsername"`
	DisplayName  string `json:"displayName"`
}

func (c *Client) listUsers(ctx context.Context) ([]user, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/user?take=100", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jellyseerr returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []user `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return payload.Results, nil
}
