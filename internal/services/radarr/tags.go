package radarr

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"watchlistarr/internal/models"
)

// GetTags retrieves all tags from Radarr
func (c *Client) GetTags(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/tag", nil, &tags); err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}

	c.logger.WithField("count", len(tags)).Debug("Retrieved tags from Radarr")
	return tags, nil
}

// CreateTag creates a new tag and returns it with its assigned id
func (c *Client) CreateTag(ctx context.Context, label string) (*models.Tag, error) {
	payload := map[string]string{"label": label}

	var created models.Tag
	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/tag", payload, &created); err != nil {
		return nil, fmt.Errorf("failed to create tag %q: %w", label, err)
	}

	c.logger.WithFields(logrus.Fields{
		"label": label,
		"id":    created.ID,
	}).Info("Created new Radarr tag")
	return &created, nil
}
