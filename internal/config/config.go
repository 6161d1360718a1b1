package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Remote Plex
	PlexBaseURL    string
	PlexToken      string
	RequestTimeout time.Duration

	// Friends watchlist
	FriendsEnabled bool
	FriendsFeedURL string

	// Friend attribution tagging
	UserTaggingEnabled bool
	JellyseerrURL      string
	JellyseerrAPIKey   string
	TagPrefix          string
	DefaultTagName     string
	ManualMappings     map[string]string

	// Radarr
	RadarrURL           string
	RadarrAPIKey        string
	RootFolder          string
	QualityProfileID    int64
	MinimumAvailability string
	WatchlistTagID      int64

	// Upgrade
	UpgradeTagID           int64
	MinFileSizeGB          float64
	UpgradeIntervalMinutes int

	// Schedule
	SyncIntervalMinutes int
	MaxDailySearches    *int // nil = unlimited
	SearchesPerRun      *int // nil = unlimited
	LockTimeout         time.Duration

	// Server
	ServerPort string

	// Paths
	DataDir          string
	DatabaseFile     string
	DailyCountFile   string
	LockDir          string
	LogFile          string

	// Logging
	LogLevel string
}

// Load loads configuration from a YAML file. An empty path falls back to
// config.yaml next to the working directory, then under ./data.
func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./data")
	}

	// Defaults
	viper.SetDefault("remotePlex.request_timeout", 30)
	viper.SetDefault("remotePlex.friends_watchlist.user_tagging.tag_prefix", "friend-")
	viper.SetDefault("remotePlex.friends_watchlist.user_tagging.default_tag_name", "unknown")
	viper.SetDefault("radarr.default_quality_profile", 1)
	viper.SetDefault("radarr.minimum_availability", "announced")
	viper.SetDefault("upgrade.min_file_size_gb", 0)
	viper.SetDefault("upgrade.check_interval_minutes", 120)
	viper.SetDefault("upgrade.daily_search_count_file", "daily_search_count.json")
	viper.SetDefault("schedule.check_interval_minutes", 60)
	viper.SetDefault("schedule.lock_timeout_seconds", 7200)
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("data_dir", ".")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "watchlist_sync.log")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	dataDir, err := filepath.Abs(viper.GetString("data_dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data_dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	config := &Config{
		PlexBaseURL:    viper.GetString("remotePlex.base_url"),
		PlexToken:      viper.GetString("remotePlex.token"),
		RequestTimeout: time.Duration(viper.GetInt("remotePlex.request_timeout")) * time.Second,

		FriendsEnabled: viper.GetBool("remotePlex.friends_watchlist.enabled"),
		FriendsFeedURL: viper.GetString("remotePlex.friends_watchlist.feed_url"),

		UserTaggingEnabled: viper.GetBool("remotePlex.friends_watchlist.user_tagging.enabled"),
		JellyseerrURL:      viper.GetString("remotePlex.friends_watchlist.user_tagging.jellyseerr_url"),
		JellyseerrAPIKey:   viper.GetString("remotePlex.friends_watchlist.user_tagging.jellyseerr_api_key"),
		TagPrefix:          viper.GetString("remotePlex.friends_watchlist.user_tagging.tag_prefix"),
		DefaultTagName:     viper.GetString("remotePlex.friends_watchlist.user_tagging.default_tag_name"),
		ManualMappings:     viper.GetStringMapString("remotePlex.friends_watchlist.user_tagging.manual_mappings"),

		RadarrURL:           viper.GetString("radarr.url"),
		RadarrAPIKey:        viper.GetString("radarr.apikey"),
		RootFolder:          viper.GetString("radarr.root_folder"),
		QualityProfileID:    viper.GetInt64("radarr.default_quality_profile"),
		MinimumAvailability: viper.GetString("radarr.minimum_availability"),
		WatchlistTagID:      viper.GetInt64("radarr.tags.watchlist"),

		UpgradeTagID:           viper.GetInt64("upgrade.plex_upgrade_tag"),
		MinFileSizeGB:          viper.GetFloat64("upgrade.min_file_size_gb"),
		UpgradeIntervalMinutes: viper.GetInt("upgrade.check_interval_minutes"),

		SyncIntervalMinutes: viper.GetInt("schedule.check_interval_minutes"),
		LockTimeout:         time.Duration(viper.GetInt("schedule.lock_timeout_seconds")) * time.Second,

		ServerPort: viper.GetString("server.port"),

		DataDir:        dataDir,
		DatabaseFile:   filepath.Join(dataDir, "watchlistarr.db"),
		DailyCountFile: filepath.Join(dataDir, viper.GetString("upgrade.daily_search_count_file")),
		LockDir:        filepath.Join(dataDir, "locks"),
		LogFile:        filepath.Join(dataDir, viper.GetString("log.file")),

		LogLevel: viper.GetString("log.level"),
	}

	// Absent limits mean unlimited, which is distinct from zero
	if viper.IsSet("schedule.max_daily_searches") {
		v := viper.GetInt("schedule.max_daily_searches")
		config.MaxDailySearches = &v
	}
	if viper.IsSet("schedule.searches_per_run") {
		v := viper.GetInt("schedule.searches_per_run")
		config.SearchesPerRun = &v
	} else {
		v := 3
		config.SearchesPerRun = &v
	}

	// Validate required connection parameters
	if config.PlexBaseURL == "" {
		return nil, fmt.Errorf("remotePlex.base_url is required")
	}
	if config.PlexToken == "" {
		return nil, fmt.Errorf("remotePlex.token is required")
	}
	if config.RadarrURL == "" {
		return nil, fmt.Errorf("radarr.url is required")
	}
	if config.RadarrAPIKey == "" {
		return nil, fmt.Errorf("radarr.apikey is required")
	}
	if config.RootFolder == "" {
		return nil, fmt.Errorf("radarr.root_folder is required")
	}

	return config, nil
}
