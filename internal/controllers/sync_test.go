package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"watchlistarr/internal/models"
	"watchlistarr/internal/search"
	"watchlistarr/internal/services/jellyseerr"
	"watchlistarr/internal/services/plex"
	"watchlistarr/internal/services/radarr"
	"watchlistarr/internal/tags"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func intPtr(n int) *int { return &n }

// fakeRadarr is an httptest-backed Radarr API double recording writes.
type fakeRadarr struct {
	mu       sync.Mutex
	movies   []models.Movie
	tags     []models.Tag
	nextTag  int64
	added    []models.Movie
	updated  []models.Movie
	searched []int64
	server   *httptest.Server
}

func newFakeRadarr(t *testing.T, movies []models.Movie, existingTags []models.Tag) *fakeRadarr {
	t.Helper()
	// Created tag ids start above the configured marker tag ids.
	f := &fakeRadarr{movies: movies, tags: existingTags, nextTag: 10}
	for _, tag := range existingTags {
		if tag.ID > f.nextTag {
			f.nextTag = tag.ID
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/system/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"version": "5.0.0"})
	})
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(f.movies)
		case http.MethodPost:
			var movie models.Movie
			json.NewDecoder(r.Body).Decode(&movie)
			movie.ID = int64(len(f.movies) + len(f.added) + 100)
			f.added = append(f.added, movie)
			json.NewEncoder(w).Encode(movie)
		}
	})
	mux.HandleFunc("/api/v3/movie/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var movie models.Movie
		json.NewDecoder(r.Body).Decode(&movie)
		f.updated = append(f.updated, movie)
		json.NewEncoder(w).Encode(movie)
	})
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(f.tags)
		case http.MethodPost:
			var payload struct {
				Label string `json:"label"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			f.nextTag++
			tag := models.Tag{ID: f.nextTag, Label: payload.Label}
			f.tags = append(f.tags, tag)
			json.NewEncoder(w).Encode(tag)
		}
	})
	mux.HandleFunc("/api/v3/command", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var payload struct {
			MovieIDs []int64 `json:"movieIds"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		f.searched = append(f.searched, payload.MovieIDs...)
		json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
	})
	mux.HandleFunc("/api/v3/movie/lookup/imdb", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int64{"tmdbId": 603})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRadarr) client(t *testing.T) *radarr.Client {
	t.Helper()
	client, err := radarr.NewClient(f.server.URL, "test-key", 5*time.Second, quietLogger())
	if err != nil {
		t.Fatalf("radarr.NewClient: %v", err)
	}
	return client
}

// fakePlex serves a one-page personal watchlist plus per-item metadata.
func fakePlex(t *testing.T, listing string, metadata map[string]string) *plex.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/library/sections/watchlist/all", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, listing)
	})
	mux.HandleFunc("/library/metadata/", func(w http.ResponseWriter, r *http.Request) {
		key := filepath.Base(r.URL.Path)
		body, ok := metadata[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, body)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := plex.NewClient(server.URL, "token", 5*time.Second, quietLogger())
	if err != nil {
		t.Fatalf("plex.NewClient: %v", err)
	}
	return client
}

func testDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newSyncUnderTest(t *testing.T, fake *fakeRadarr, plexClient *plex.Client, opts SyncOptions) *Sync {
	t.Helper()
	radarrClient := fake.client(t)
	manager := tags.NewManager(radarrClient, tags.Options{
		WatchlistTagID: 1,
		UpgradeTagID:   2,
		TagPrefix:      "friend-",
		DefaultName:    "unknown",
	}, quietLogger())
	counter := search.NewDailyCounter(filepath.Join(t.TempDir(), "count.json"))
	jelly := jellyseerr.NewClient("", "", time.Second, quietLogger())
	return NewSync(plexClient, radarrClient, jelly, manager, testDB(t), counter, opts, quietLogger())
}

const oneMovieListing = `<MediaContainer totalSize="1">
	<Video ratingKey="rk1" title="The Matrix" year="1999"/>
</MediaContainer>`

const matrixMetadata = `<MediaContainer>
	<Video ratingKey="rk1" title="The Matrix" year="1999">
		<Guid id="imdb://tt0133093"/>
		<Guid id="tmdb://603"/>
	</Video>
</MediaContainer>`

func baseOpts() SyncOptions {
	return SyncOptions{
		QualityProfileID:    7,
		RootFolder:          "/movies",
		MinimumAvailability: "announced",
		MinFileSizeGB:       4,
	}
}

func TestSyncAddsMissingMovie(t *testing.T) {
	fake := newFakeRadarr(t, nil, nil)
	plexClient := fakePlex(t, oneMovieListing, map[string]string{"rk1": matrixMetadata})

	opts := baseOpts()
	opts.Limits = search.Limits{PerRun: intPtr(0)}
	s := newSyncUnderTest(t, fake, plexClient, opts)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.added) != 1 {
		t.Fatalf("expected 1 add, got %d", len(fake.added))
	}
	added := fake.added[0]
	if added.TMDBId != 603 || added.IMDBId != "tt0133093" {
		t.Errorf("unexpected ids on add payload: tmdb=%d imdb=%s", added.TMDBId, added.IMDBId)
	}
	if !added.HasTag(1) || !added.HasTag(2) {
		t.Errorf("new record should carry watchlist and upgrade tags, got %v", added.Tags)
	}
	if added.AddOptions == nil || added.AddOptions.SearchForMovie {
		t.Error("add payload must not auto-search")
	}
	if len(fake.searched) != 0 {
		t.Errorf("per-run limit 0 must suppress the post-add search, got %v", fake.searched)
	}
}

func TestSyncSearchesAfterAddWhenAdmitted(t *testing.T) {
	fake := newFakeRadarr(t, nil, nil)
	plexClient := fakePlex(t, oneMovieListing, map[string]string{"rk1": matrixMetadata})

	s := newSyncUnderTest(t, fake, plexClient, baseOpts())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.searched) != 1 {
		t.Fatalf("expected 1 search after add, got %v", fake.searched)
	}
}

func TestSyncSkipsAlreadyTaggedRecord(t *testing.T) {
	existing := []models.Movie{{
		ID:                  55,
		Title:               "The Matrix",
		IMDBId:              "tt0133093",
		TMDBId:              603,
		QualityProfileID:    7,
		RootFolderPath:      "/movies",
		Monitored:           true,
		MinimumAvailability: "announced",
		Tags:                []int64{1},
	}}
	fake := newFakeRadarr(t, existing, nil)
	plexClient := fakePlex(t, oneMovieListing, map[string]string{"rk1": matrixMetadata})

	s := newSyncUnderTest(t, fake, plexClient, baseOpts())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.added)+len(fake.updated)+len(fake.searched) != 0 {
		t.Errorf("already-tagged record must produce no writes: added=%d updated=%d searched=%d",
			len(fake.added), len(fake.updated), len(fake.searched))
	}
}

func TestSyncUpdatesUntaggedRecord(t *testing.T) {
	fourGB := int64(4) * 1024 * 1024 * 1024
	existing := []models.Movie{{
		ID:                  55,
		Title:               "The Matrix",
		IMDBId:              "tt0133093",
		TMDBId:              603,
		QualityProfileID:    7,
		RootFolderPath:      "/movies",
		Path:                "/movies/The Matrix (1999)",
		Monitored:           true,
		MinimumAvailability: "announced",
		SizeOnDisk:          fourGB, // exactly at threshold: not upgrade-eligible
	}}
	fake := newFakeRadarr(t, existing, nil)
	plexClient := fakePlex(t, oneMovieListing, map[string]string{"rk1": matrixMetadata})

	s := newSyncUnderTest(t, fake, plexClient, baseOpts())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(fake.updated))
	}
	updated := fake.updated[0]
	if !updated.HasTag(1) {
		t.Errorf("update must add the watchlist tag, got %v", updated.Tags)
	}
	if updated.HasTag(2) {
		t.Errorf("record at the size threshold must not get the upgrade tag, got %v", updated.Tags)
	}
	if len(fake.searched) != 0 {
		t.Errorf("ineligible record must not be searched, got %v", fake.searched)
	}
}

func TestSyncUpdateKeepsRecordSettings(t *testing.T) {
	existing := []models.Movie{{
		ID:                  55,
		Title:               "The Matrix",
		IMDBId:              "tt0133093",
		TMDBId:              603,
		QualityProfileID:    3,
		RootFolderPath:      "/movies",
		Path:                "/movies/The Matrix (1999)",
		Monitored:           false,
		MinimumAvailability: "released",
	}}
	fake := newFakeRadarr(t, existing, nil)
	plexClient := fakePlex(t, oneMovieListing, map[string]string{"rk1": matrixMetadata})

	// Config disagrees with the record on profile and availability; the
	// record wins, the update only adds tags.
	s := newSyncUnderTest(t, fake, plexClient, baseOpts())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(fake.updated))
	}
	updated := fake.updated[0]
	if updated.Monitored {
		t.Error("operator's monitored=false must survive reconciliation")
	}
	if updated.QualityProfileID != 3 {
		t.Errorf("record's quality profile must survive, got %d", updated.QualityProfileID)
	}
	if updated.MinimumAvailability != "released" {
		t.Errorf("record's availability must survive, got %q", updated.MinimumAvailability)
	}
	if updated.RootFolderPath != "/movies" || updated.Path != "/movies/The Matrix (1999)" {
		t.Errorf("paths must survive, got root=%q path=%q", updated.RootFolderPath, updated.Path)
	}
	if !updated.HasTag(1) {
		t.Errorf("update should still add the watchlist tag, got %v", updated.Tags)
	}
}

func TestSyncUpdateFillsAbsentFields(t *testing.T) {
	existing := []models.Movie{{
		ID:     55,
		Title:  "The Matrix",
		IMDBId: "tt0133093",
		TMDBId: 603,
	}}
	fake := newFakeRadarr(t, existing, nil)
	plexClient := fakePlex(t, oneMovieListing, map[string]string{"rk1": matrixMetadata})

	s := newSyncUnderTest(t, fake, plexClient, baseOpts())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(fake.updated))
	}
	updated := fake.updated[0]
	if updated.QualityProfileID != 7 {
		t.Errorf("absent profile should fall back to config, got %d", updated.QualityProfileID)
	}
	if updated.MinimumAvailability != "announced" {
		t.Errorf("absent availability should fall back to config, got %q", updated.MinimumAvailability)
	}
	if updated.RootFolderPath != "/movies" {
		t.Errorf("absent root folder should fall back to config, got %q", updated.RootFolderPath)
	}
}

func TestSyncSkipsCreateWithoutTMDBId(t *testing.T) {
	// Metadata carries only an IMDb guid, and the library is empty, so the
	// create path has no TMDB id to work with.
	const imdbOnlyMetadata = `<MediaContainer>
		<Video ratingKey="rk1" title="The Matrix" year="1999">
			<Guid id="imdb://tt0133093"/>
		</Video>
	</MediaContainer>`

	fake := newFakeRadarr(t, nil, nil)
	plexClient := fakePlex(t, oneMovieListing, map[string]string{"rk1": imdbOnlyMetadata})

	s := newSyncUnderTest(t, fake, plexClient, baseOpts())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.added) != 0 {
		t.Errorf("item without a TMDB id must not be added, got %d adds", len(fake.added))
	}
	if len(fake.searched) != 0 {
		t.Errorf("skipped item must not be searched, got %v", fake.searched)
	}
}

func TestSyncDryRunSuppressesWrites(t *testing.T) {
	fake := newFakeRadarr(t, nil, nil)
	plexClient := fakePlex(t, oneMovieListing, map[string]string{"rk1": matrixMetadata})

	opts := baseOpts()
	opts.DryRun = true
	s := newSyncUnderTest(t, fake, plexClient, opts)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.added)+len(fake.updated)+len(fake.searched) != 0 {
		t.Errorf("dry run must produce no writes: added=%d updated=%d searched=%d",
			len(fake.added), len(fake.updated), len(fake.searched))
	}
}

func TestSyncFriendsFeedMoviesOnly(t *testing.T) {
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, `<rss version="2.0"><channel>
			<item><title>The Matrix</title><guid>imdb://tt0133093?lang=en</guid><author>abcd1234</author><category>movie</category></item>
			<item><title>Severance</title><guid>imdb://tt11280740?lang=en</guid><author>abcd1234</author><category>show</category></item>
		</channel></rss>`)
	}))
	defer feedServer.Close()

	fake := newFakeRadarr(t, nil, nil)
	plexClient := fakePlex(t, `<MediaContainer totalSize="0"></MediaContainer>`, nil)

	opts := baseOpts()
	opts.FriendsEnabled = true
	opts.FriendsFeedURL = feedServer.URL
	opts.UserTaggingEnabled = true
	opts.Limits = search.Limits{PerRun: intPtr(0)}
	s := newSyncUnderTest(t, fake, plexClient, opts)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.added) != 1 {
		t.Fatalf("only the movie entry should be added, got %d adds", len(fake.added))
	}
	added := fake.added[0]
	if added.TMDBId != 603 {
		t.Errorf("friends item should be enhanced via lookup, got tmdb=%d", added.TMDBId)
	}

	// The attribution tag must have been created with the default name,
	// since no Jellyseerr mapping is available.
	foundAttribution := false
	for _, tag := range fake.tags {
		if tag.Label == "friend-unknown" && added.HasTag(tag.ID) {
			foundAttribution = true
		}
	}
	if !foundAttribution {
		t.Errorf("friends add should carry an attribution tag, tags=%v registry=%v", added.Tags, fake.tags)
	}
}
