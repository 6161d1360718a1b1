// Package controllers implements the two scheduled jobs: the watchlist sync
// and the upgrade sweep. Both are resilient to per-item faults and share the
// search admission counter.
package controllers

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"watchlistarr/internal/matcher"
	"watchlistarr/internal/models"
	"watchlistarr/internal/search"
	"watchlistarr/internal/services/jellyseerr"
	"watchlistarr/internal/services/plex"
	"watchlistarr/internal/services/radarr"
	"watchlistarr/internal/tags"
)

// SyncOptions carries the sync job's configuration.
type SyncOptions struct {
	FriendsEnabled      bool
	FriendsFeedURL      string
	UserTaggingEnabled  bool
	QualityProfileID    int64
	RootFolder          string
	MinimumAvailability string
	MinFileSizeGB       float64
	Limits              search.Limits
	DryRun              bool
}

// Sync reconciles the merged watchlist against the Radarr library.
type Sync struct {
	plex       *plex.Client
	radarr     *radarr.Client
	jellyseerr *jellyseerr.Client
	tags       *tags.Manager
	db         *models.Database
	counter    *search.DailyCounter
	opts       SyncOptions
	logger     *logrus.Logger
}

// NewSync creates the watchlist sync controller.
func NewSync(plexClient *plex.Client, radarrClient *radarr.Client, jellyseerrClient *jellyseerr.Client,
	tagManager *tags.Manager, db *models.Database, counter *search.DailyCounter,
	opts SyncOptions, logger *logrus.Logger) *Sync {
	return &Sync{
		plex:       plexClient,
		radarr:     radarrClient,
		jellyseerr: jellyseerrClient,
		tags:       tagManager,
		db:         db,
		counter:    counter,
		opts:       opts,
		logger:     logger,
	}
}

// Run executes one watchlist sync. Connectivity failures abort the run;
// per-item faults are logged and skipped.
func (s *Sync) Run(ctx context.Context) error {
	started := time.Now()

	if err := s.radarr.TestConnection(ctx); err != nil {
		return fmt.Errorf("radarr connection test failed: %w", err)
	}

	if s.opts.UserTaggingEnabled {
		s.tags.SetUserMapping(s.jellyseerr.FetchUserMapping(ctx))
	}

	personal := s.fetchPersonal(ctx)

	var friends []models.WatchlistItem
	if s.opts.FriendsEnabled {
		friends = s.fetchFriends(ctx)
	}

	merged := matcher.Merge(personal, friends, s.logger)

	movies, err := s.radarr.GetAllMovies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list radarr library: %w", err)
	}
	index := matcher.BuildIndex(movies)

	run := search.NewRun(s.counter, s.opts.Limits, s.logger)

	var added, updated, skipped int
	for _, item := range merged {
		switch s.processItem(ctx, item, index, movies, run) {
		case outcomeAdded:
			added++
		case outcomeUpdated:
			updated++
		default:
			skipped++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"items":          len(merged),
		"added":          added,
		"updated":        updated,
		"skipped":        skipped,
		"searches":       run.SearchesThisRun(),
		"searches_today": run.SearchesToday(),
		"duration":       time.Since(started).Round(time.Millisecond).String(),
		"dry_run":        s.opts.DryRun,
	}).Info("Watchlist sync completed")
	return nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeAdded
	outcomeUpdated
)

// fetchPersonal pages through the personal watchlist, using the identity
// cache to avoid the per-item metadata fetch where possible. A page failure
// stops pagination with whatever was collected so far.
func (s *Sync) fetchPersonal(ctx context.Context) []models.WatchlistItem {
	var items []models.WatchlistItem

	offset := 0
	for {
		entries, total, err := s.plex.ListWatchlistPage(ctx, offset)
		if err != nil {
			s.logger.WithError(err).WithField("offset", offset).Error("Failed to fetch watchlist page")
			break
		}

		for _, entry := range entries {
			item, ok := s.resolveEntry(ctx, entry)
			if ok {
				items = append(items, item)
			}
		}

		offset += plex.PageSize
		if offset >= total || len(entries) == 0 {
			break
		}
	}

	s.logger.WithField("count", len(items)).Info("Fetched personal watchlist")
	return items
}

// resolveEntry turns a summary row into a full item, hitting the metadata
// endpoint only when the cache has no external ids for the rating key.
func (s *Sync) resolveEntry(ctx context.Context, entry plex.WatchlistEntry) (models.WatchlistItem, bool) {
	item := models.WatchlistItem{
		Title:     entry.Title,
		RatingKey: entry.RatingKey,
		Year:      entry.Year,
		Category:  models.CategoryMovie,
	}

	record, err := s.db.GetByIdentifiers(entry.RatingKey, "", "")
	if err != nil {
		s.logger.WithError(err).WithField("title", entry.Title).Warn("Cache lookup failed")
	}
	if record != nil && (record.IMDBId != "" || record.TMDBId != "") {
		item.IMDBId = record.IMDBId
		item.TMDBId = record.TMDBId
		return item, true
	}

	guids, err := s.plex.GetMetadataGUIDs(ctx, entry.RatingKey)
	if err != nil {
		s.logger.WithError(err).WithField("title", entry.Title).Warn("Failed to fetch metadata, skipping item")
		return models.WatchlistItem{}, false
	}
	item.IMDBId = guids.IMDB
	item.TMDBId = guids.TMDB

	if err := s.db.SaveMetadata(models.MediaKeys{
		RatingKey: entry.RatingKey,
		IMDBId:    guids.IMDB,
		TMDBId:    guids.TMDB,
		Title:     entry.Title,
		Year:      entry.Year,
	}); err != nil {
		s.logger.WithError(err).WithField("title", entry.Title).Warn("Failed to cache metadata")
	}
	return item, true
}

// fetchFriends reads the friends' RSS feed and enhances movie entries with
// TMDB ids, cache first, then the Radarr lookup endpoint. Feed failures
// yield an empty list.
func (s *Sync) fetchFriends(ctx context.Context) []models.WatchlistItem {
	entries, err := s.plex.GetFriendsWatchlist(ctx, s.opts.FriendsFeedURL)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch friends' watchlist feed")
		return nil
	}

	var items []models.WatchlistItem
	for _, entry := range entries {
		if entry.Category != string(models.CategoryMovie) {
			continue
		}
		if entry.IMDBId == "" {
			s.logger.WithField("title", entry.Title).Debug("Friends' feed item has no IMDb id, skipping")
			continue
		}

		item := models.WatchlistItem{
			Title:        entry.Title,
			IMDBId:       entry.IMDBId,
			SourceUserID: entry.Author,
			Category:     models.CategoryMovie,
		}
		item.TMDBId = s.enhanceTMDB(ctx, entry.IMDBId, entry.Title)
		items = append(items, item)
	}

	s.logger.WithField("count", len(items)).Info("Collected friends' watchlist movies")
	return items
}

func (s *Sync) enhanceTMDB(ctx context.Context, imdbID, title string) string {
	record, err := s.db.GetByIdentifiers("", imdbID, "")
	if err != nil {
		s.logger.WithError(err).WithField("imdb", imdbID).Warn("Cache lookup failed")
	}
	if record != nil && record.TMDBId != "" {
		return record.TMDBId
	}

	tmdbID, err := s.radarr.LookupByIMDB(ctx, imdbID)
	if err != nil {
		s.logger.WithError(err).WithField("imdb", imdbID).Debug("TMDB lookup failed")
		return ""
	}

	tmdb := strconv.FormatInt(tmdbID, 10)
	if err := s.db.SaveMetadata(models.MediaKeys{IMDBId: imdbID, TMDBId: tmdb, Title: title}); err != nil {
		s.logger.WithError(err).WithField("imdb", imdbID).Warn("Failed to cache TMDB id")
	}
	return tmdb
}

func (s *Sync) processItem(ctx context.Context, item models.WatchlistItem,
	index map[string]*models.Movie, movies []models.Movie, run *search.Run) outcome {
	if err := s.db.SaveMetadata(models.MediaKeys{
		RatingKey: item.RatingKey,
		IMDBId:    item.IMDBId,
		TMDBId:    item.TMDBId,
		Title:     item.Title,
		Year:      item.Year,
	}); err != nil {
		s.logger.WithError(err).WithField("title", item.Title).Warn("Failed to cache item metadata")
	}

	var attribution string
	if s.opts.UserTaggingEnabled {
		attribution = s.tags.AttributionTag(item.SourceUserID)
	}

	existing := matcher.Resolve(item, index, movies)
	if existing != nil {
		return s.updateExisting(ctx, item, existing, attribution, run)
	}
	return s.addMissing(ctx, item, attribution, run)
}

// updateExisting reconciles a watchlist item against its library record.
// Records already carrying the watchlist tag were handled on a prior run and
// are skipped entirely.
func (s *Sync) updateExisting(ctx context.Context, item models.WatchlistItem,
	existing *models.Movie, attribution string, run *search.Run) outcome {
	log := s.logger.WithField("title", existing.Title)

	if existing.HasTag(s.tags.WatchlistTagID()) {
		log.Debug("Record already on the watchlist, skipping")
		return outcomeSkipped
	}

	eligible := tags.UpgradeEligible(existing.SizeOnDisk, s.opts.MinFileSizeGB)
	desired, err := s.tags.DesiredTags(ctx, existing.Tags, eligible, attribution)
	if err != nil {
		log.WithError(err).Error("Failed to compute tag set")
		return outcomeSkipped
	}

	// The record's own settings survive reconciliation; config only fills
	// fields the record lacks. Only the tag set and the path are recomputed.
	payload := *existing
	if payload.QualityProfileID == 0 {
		payload.QualityProfileID = s.opts.QualityProfileID
	}
	if payload.MinimumAvailability == "" {
		payload.MinimumAvailability = s.opts.MinimumAvailability
	}
	if payload.RootFolderPath == "" {
		payload.RootFolderPath = s.opts.RootFolder
	}
	payload.Tags = desired
	if existing.Path != "" && !strings.HasPrefix(existing.Path, payload.RootFolderPath) {
		payload.Path = path.Join(payload.RootFolderPath, path.Base(existing.Path))
	}

	result := outcomeSkipped
	if radarr.NeedsUpdate(existing, &payload) {
		if s.opts.DryRun {
			log.Info("Dry run: would update record")
		} else {
			if _, err := s.radarr.UpdateMovie(ctx, existing.ID, &payload); err != nil {
				log.WithError(err).Error("Failed to update record")
				return outcomeSkipped
			}
			log.Info("Updated record")
		}
		if err := s.db.MarkProcessed(s.keysFor(item)); err != nil {
			log.WithError(err).Warn("Failed to mark item processed")
		}
		result = outcomeUpdated
	}

	// Only the first sighting of an under-sized record warrants a search;
	// the upgrade sweep owns all later retries.
	if eligible {
		s.maybeSearch(ctx, existing.ID, s.keysFor(item), run, search.PolicyFirstOnly{}, log)
	}
	return result
}

// addMissing creates a library record for a watchlist item Radarr does not
// know yet. The create payload needs a numeric TMDB id; items without one
// are skipped until a later run can resolve it.
func (s *Sync) addMissing(ctx context.Context, item models.WatchlistItem,
	attribution string, run *search.Run) outcome {
	log := s.logger.WithField("title", item.Title)

	tmdbID, err := strconv.ParseInt(strings.TrimSpace(item.TMDBId), 10, 64)
	if err != nil || tmdbID == 0 {
		log.Warn("No usable TMDB id, cannot add record")
		return outcomeSkipped
	}

	desired, err := s.tags.DesiredTags(ctx, nil, true, attribution)
	if err != nil {
		log.WithError(err).Error("Failed to compute tag set")
		return outcomeSkipped
	}

	payload := &models.Movie{
		Title:               item.Title,
		IMDBId:              item.IMDBId,
		TMDBId:              tmdbID,
		QualityProfileID:    s.opts.QualityProfileID,
		RootFolderPath:      s.opts.RootFolder,
		Monitored:           true,
		MinimumAvailability: s.opts.MinimumAvailability,
		Tags:                desired,
		AddOptions:          &models.AddOptions{SearchForMovie: false},
	}

	if s.opts.DryRun {
		log.Info("Dry run: would add record")
		return outcomeAdded
	}

	created, err := s.radarr.AddMovie(ctx, payload)
	if err != nil {
		log.WithError(err).Error("Failed to add record")
		return outcomeSkipped
	}
	log.WithField("id", created.ID).Info("Added record")

	if err := s.db.MarkProcessed(s.keysFor(item)); err != nil {
		log.WithError(err).Warn("Failed to mark item processed")
	}

	s.maybeSearch(ctx, created.ID, s.keysFor(item), run, search.PolicyAlways{}, log)
	return outcomeAdded
}

// maybeSearch triggers a library search when the admission run and policy
// allow it, then records the search against the caps and the cache.
func (s *Sync) maybeSearch(ctx context.Context, movieID int64, keys models.MediaKeys,
	run *search.Run, policy search.Policy, log *logrus.Entry) {
	record, err := s.db.GetByIdentifiers(keys.RatingKey, keys.IMDBId, keys.TMDBId)
	if err != nil {
		s.logger.WithError(err).Warn("Cache lookup failed before search")
	}

	var lastSearch *time.Time
	if record != nil {
		lastSearch = record.LastSearch
	}
	if !run.Admit(lastSearch, policy) {
		log.Debug("Search not admitted")
		return
	}

	if s.opts.DryRun {
		// Neither the cache nor the persisted counter may record a
		// search that never ran, but the caps must still decrement.
		log.Info("Dry run: would trigger search")
		run.RecordDryRun()
		return
	}
	if err := s.radarr.TriggerSearch(ctx, movieID); err != nil {
		log.WithError(err).Error("Failed to trigger search")
		return
	}
	log.Info("Triggered search")

	if err := s.db.MarkSearched(keys); err != nil {
		log.WithError(err).Warn("Failed to record search timestamp")
	}
	run.RecordSearch()
}

func (s *Sync) keysFor(item models.WatchlistItem) models.MediaKeys {
	return models.MediaKeys{
		RatingKey: item.RatingKey,
		IMDBId:    item.IMDBId,
		TMDBId:    item.TMDBId,
		Title:     item.Title,
		Year:      item.Year,
	}
}
