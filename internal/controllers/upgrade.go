package controllers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"watchlistarr/internal/models"
	"watchlistarr/internal/search"
	"watchlistarr/internal/services/radarr"
	"watchlistarr/internal/tags"
)

// UpgradeOptions carries the upgrade sweep's configuration.
type UpgradeOptions struct {
	MinFileSizeGB float64
	Limits        search.Limits
	DryRun        bool
}

// Upgrade sweeps upgrade-tagged records: it retires the tag from records
// whose file has grown past the size threshold and re-searches the rest,
// oldest search first, under the admission caps.
type Upgrade struct {
	radarr  *radarr.Client
	tags    *tags.Manager
	db      *models.Database
	counter *search.DailyCounter
	opts    UpgradeOptions
	logger  *logrus.Logger
}

// NewUpgrade creates the upgrade sweep controller.
func NewUpgrade(radarrClient *radarr.Client, tagManager *tags.Manager, db *models.Database,
	counter *search.DailyCounter, opts UpgradeOptions, logger *logrus.Logger) *Upgrade {
	return &Upgrade{
		radarr:  radarrClient,
		tags:    tagManager,
		db:      db,
		counter: counter,
		opts:    opts,
		logger:  logger,
	}
}

type candidate struct {
	movie      models.Movie
	lastSearch time.Time
}

// Run executes one upgrade sweep.
func (u *Upgrade) Run(ctx context.Context) error {
	started := time.Now()

	movies, err := u.radarr.GetAllMovies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list radarr library: %w", err)
	}

	upgradeTag := u.tags.UpgradeTagID()
	var tagged []models.Movie
	for _, movie := range movies {
		if movie.HasTag(upgradeTag) {
			tagged = append(tagged, movie)
		}
	}
	u.logger.WithField("count", len(tagged)).Info("Found upgrade-tagged records")

	cleared := u.clearCompleted(ctx, tagged, upgradeTag)
	searched := u.searchCandidates(ctx, tagged)

	u.logger.WithFields(logrus.Fields{
		"tagged":   len(tagged),
		"cleared":  cleared,
		"searched": searched,
		"duration": time.Since(started).Round(time.Millisecond).String(),
		"dry_run":  u.opts.DryRun,
	}).Info("Upgrade sweep completed")
	return nil
}

// clearCompleted removes the upgrade tag from records whose file now meets
// the size threshold.
func (u *Upgrade) clearCompleted(ctx context.Context, tagged []models.Movie, upgradeTag int64) int {
	cleared := 0
	for i := range tagged {
		movie := &tagged[i]
		if tags.UpgradeEligible(movie.SizeOnDisk, u.opts.MinFileSizeGB) {
			continue
		}
		log := u.logger.WithFields(logrus.Fields{
			"title": movie.Title,
			"size":  movie.SizeOnDisk,
		})

		if u.opts.DryRun {
			log.Info("Dry run: would clear upgrade tag")
			cleared++
			continue
		}

		payload := *movie
		payload.Tags = tags.RemoveID(movie.Tags, upgradeTag)
		if _, err := u.radarr.UpdateMovie(ctx, movie.ID, &payload); err != nil {
			log.WithError(err).Error("Failed to clear upgrade tag")
			continue
		}
		log.Info("Cleared upgrade tag, file meets size threshold")

		if err := u.db.MarkProcessed(u.keysFor(movie)); err != nil {
			log.WithError(err).Warn("Failed to mark record processed")
		}
		cleared++
	}
	return cleared
}

// searchCandidates triggers searches for still-undersized records whose last
// search is at least a day old, oldest first then smallest first, until a
// cap denies admission.
func (u *Upgrade) searchCandidates(ctx context.Context, tagged []models.Movie) int {
	policy := search.Cooldown{Duration: 24 * time.Hour}
	now := time.Now()

	var candidates []candidate
	for _, movie := range tagged {
		if !tags.UpgradeEligible(movie.SizeOnDisk, u.opts.MinFileSizeGB) {
			continue
		}

		// Zero time sorts never-searched records to the front.
		var lastSearch time.Time
		record, err := u.db.GetByIdentifiers("", movie.IMDBId, tmdbKey(&movie))
		if err != nil {
			u.logger.WithError(err).WithField("title", movie.Title).Warn("Cache lookup failed")
		}
		if record != nil && record.LastSearch != nil {
			lastSearch = *record.LastSearch
		}

		if !policy.Permits(&lastSearch, now) {
			continue
		}
		candidates = append(candidates, candidate{movie: movie, lastSearch: lastSearch})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].lastSearch.Equal(candidates[j].lastSearch) {
			return candidates[i].lastSearch.Before(candidates[j].lastSearch)
		}
		return candidates[i].movie.SizeOnDisk < candidates[j].movie.SizeOnDisk
	})

	run := search.NewRun(u.counter, u.opts.Limits, u.logger)
	searched := 0
	for _, cand := range candidates {
		if !run.CapsAllow() {
			u.logger.WithField("remaining", len(candidates)-searched).Info("Search cap reached, deferring remaining candidates")
			break
		}
		log := u.logger.WithField("title", cand.movie.Title)

		if u.opts.DryRun {
			log.Info("Dry run: would trigger upgrade search")
			run.RecordDryRun()
			searched++
			continue
		}

		if err := u.radarr.TriggerSearch(ctx, cand.movie.ID); err != nil {
			log.WithError(err).Error("Failed to trigger upgrade search")
			continue
		}
		log.Info("Triggered upgrade search")

		if err := u.db.MarkSearched(u.keysFor(&cand.movie)); err != nil {
			log.WithError(err).Warn("Failed to record search timestamp")
		}
		run.RecordSearch()
		searched++
	}
	return searched
}

func (u *Upgrade) keysFor(movie *models.Movie) models.MediaKeys {
	return models.MediaKeys{
		IMDBId: movie.IMDBId,
		TMDBId: tmdbKey(movie),
		Title:  movie.Title,
	}
}

// tmdbKey renders a TMDB id as a cache key. An absent id must stay empty,
// never become the literal "0" that would alias unrelated records.
func tmdbKey(movie *models.Movie) string {
	if movie.TMDBId == 0 {
		return ""
	}
	return strconv.FormatInt(movie.TMDBId, 10)
}
