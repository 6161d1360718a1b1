package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"watchlistarr/internal/api"
	"watchlistarr/internal/config"
	"watchlistarr/internal/controllers"
	"watchlistarr/internal/joblock"
	"watchlistarr/internal/logging"
	"watchlistarr/internal/models"
	"watchlistarr/internal/scheduler"
	"watchlistarr/internal/search"
	"watchlistarr/internal/services/jellyseerr"
	"watchlistarr/internal/services/plex"
	"watchlistarr/internal/services/radarr"
	"watchlistarr/internal/tags"
)

var (
	configPath string
	dryRun     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "watchlistarr",
		Short: "Reconciles Plex watchlists against a Radarr library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log intended writes without performing them")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Run one watchlist sync and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle("sync")
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "upgrade",
		Short: "Run one upgrade sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle("upgrade")
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything the daemon and the run-once commands share.
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	db        *models.Database
	counter   *search.DailyCounter
	gate      *joblock.FileGate
	syncJob   *controllers.Sync
	upgrade   *controllers.Upgrade
	scheduler *scheduler.Scheduler
}

func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFile)

	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity cache: %w", err)
	}

	plexClient, err := plex.NewClient(cfg.PlexBaseURL, cfg.PlexToken, cfg.RequestTimeout, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	radarrClient, err := radarr.NewClient(cfg.RadarrURL, cfg.RadarrAPIKey, cfg.RequestTimeout, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	jellyseerrClient := jellyseerr.NewClient(cfg.JellyseerrURL, cfg.JellyseerrAPIKey, cfg.RequestTimeout, logger)

	tagManager := tags.NewManager(radarrClient, tags.Options{
		WatchlistTagID: cfg.WatchlistTagID,
		UpgradeTagID:   cfg.UpgradeTagID,
		TagPrefix:      cfg.TagPrefix,
		DefaultName:    cfg.DefaultTagName,
		ManualNames:    cfg.ManualMappings,
	}, logger)

	counter := search.NewDailyCounter(cfg.DailyCountFile)
	limits := search.Limits{GlobalDaily: cfg.MaxDailySearches, PerRun: cfg.SearchesPerRun}

	gate, err := joblock.NewFileGate(cfg.LockDir, cfg.LockTimeout, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	syncJob := controllers.NewSync(plexClient, radarrClient, jellyseerrClient, tagManager, db, counter,
		controllers.SyncOptions{
			FriendsEnabled:      cfg.FriendsEnabled,
			FriendsFeedURL:      cfg.FriendsFeedURL,
			UserTaggingEnabled:  cfg.UserTaggingEnabled,
			QualityProfileID:    cfg.QualityProfileID,
			RootFolder:          cfg.RootFolder,
			MinimumAvailability: cfg.MinimumAvailability,
			MinFileSizeGB:       cfg.MinFileSizeGB,
			Limits:              limits,
			DryRun:              dryRun,
		}, logger)

	upgradeJob := controllers.NewUpgrade(radarrClient, tagManager, db, counter,
		controllers.UpgradeOptions{
			MinFileSizeGB: cfg.MinFileSizeGB,
			Limits:        limits,
			DryRun:        dryRun,
		}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		counter:   counter,
		gate:      gate,
		syncJob:   syncJob,
		upgrade:   upgradeJob,
		scheduler: scheduler.NewScheduler(gate, logger),
	}, nil
}

func (a *app) close() {
	a.gate.ReleaseAll()
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close identity cache")
	}
}

func runDaemon() error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	limits := search.Limits{GlobalDaily: a.cfg.MaxDailySearches, PerRun: a.cfg.SearchesPerRun}
	server := api.NewServer(a.cfg.ServerPort, a.db, a.counter, limits, a.logger)
	go func() {
		if err := server.Start(); err != nil {
			a.logger.WithError(err).Error("Status server exited")
		}
	}()

	if err := a.scheduler.AddJob("sync", a.cfg.SyncIntervalMinutes, a.syncJob); err != nil {
		return err
	}
	if err := a.scheduler.AddJob("upgrade", a.cfg.UpgradeIntervalMinutes, a.upgrade); err != nil {
		return err
	}

	// Run a sync immediately; interval entries only fire after one period.
	a.scheduler.Bootstrap(context.Background(), "sync", a.syncJob)
	a.scheduler.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	a.logger.WithField("signal", sig.String()).Info("Shutting down")

	a.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Status server shutdown failed")
	}
	return nil
}

func runSingle(name string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	var job scheduler.Job
	switch name {
	case "sync":
		job = a.syncJob
	default:
		job = a.upgrade
	}

	a.scheduler.RunOnce(context.Background(), name, job)
	return nil
}
