package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// FeedEntry is one item of the friends' watchlist RSS feed. Author carries
// the Plex user id of the friend who added the item.
type FeedEntry struct {
	Title    string
	GUID     string
	IMDBId   string
	Author   string
	Category string
	PubDate  string
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title    string `xml:"title"`
	GUID     string `xml:"guid"`
	Author   string `xml:"author"`
	Category string `xml:"category"`
	PubDate  string `xml:"pubDate"`
}

// GetFriendsWatchlist fetches and parses the friends' watchlist RSS feed.
// Any failure returns an empty list; the feed is an optional second source.
func (c *Client) GetFriendsWatchlist(ctx context.Context, feedURL string) ([]FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed XML: %w", err)
	}

	entries := make([]FeedEntry, 0, len(feed.Channel.Items))
	authors := make(map[string]bool)
	for _, item := range feed.Channel.Items {
		entry := FeedEntry{
			Title:    item.Title,
			GUID:     item.GUID,
			IMDBId:   ExtractIMDBID(item.GUID),
			Author:   strings.TrimSpace(item.Author),
			Category: strings.ToLower(strings.TrimSpace(item.Category)),
			PubDate:  item.PubDate,
		}
		if entry.Author != "" {
			authors[entry.Author] = true
		}
		entries = append(entries, entry)
	}

	c.logger.WithFields(logrus.Fields{
		"items":   len(entries),
		"friends": len(authors),
	}).Info("Fetched friends' watchlist feed")
	return entries, nil
}

// ExtractIMDBID pulls the IMDb id out of a Plex RSS guid such as
// "imdb://tt0113277?lang=en". Empty when the guid carries no imdb scheme.
func ExtractIMDBID(guid string) string {
	const scheme = "imdb://"
	idx := strings.Index(guid, scheme)
	if idx < 0 {
		return ""
	}
	id := guid[idx+len(scheme):]
	if q := strings.IndexByte(id, '?'); q >= 0 {
		id = id[:q]
	}
	return id
}
