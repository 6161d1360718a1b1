// Package tags manages the Radarr tag lifecycle: the fixed watchlist and
// upgrade marker tags, and per-friend attribution tags resolved through a
// get-or-create registry cache.
package tags

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"watchlistarr/internal/models"
)

// Registry is the subset of the Radarr client the manager needs.
type Registry interface {
	GetTags(ctx context.Context) ([]models.Tag, error)
	CreateTag(ctx context.Context, label string) (*models.Tag, error)
}

// Manager computes the desired tag set for a movie. The watchlist and
// upgrade tag ids are fixed by configuration; attribution tags are resolved
// by label against the Radarr tag registry, created on demand, and cached
// for the life of the process.
type Manager struct {
	registry Registry
	cache    *gocache.Cache
	logger   *logrus.Logger

	watchlistTagID int64
	upgradeTagID   int64
	tagPrefix      string
	defaultName    string

	userMapping map[string]string
	manualNames map[string]string

	mu     sync.Mutex
	primed bool
}

// Options configures a Manager.
type Options struct {
	WatchlistTagID int64
	UpgradeTagID   int64
	TagPrefix      string
	DefaultName    string
	ManualNames    map[string]string
}

// NewManager creates a tag manager backed by the given registry.
func NewManager(registry Registry, opts Options, logger *logrus.Logger) *Manager {
	return &Manager{
		registry:       registry,
		cache:          gocache.New(gocache.NoExpiration, 10*time.Minute),
		logger:         logger,
		watchlistTagID: opts.WatchlistTagID,
		upgradeTagID:   opts.UpgradeTagID,
		tagPrefix:      opts.TagPrefix,
		defaultName:    opts.DefaultName,
		manualNames:    opts.ManualNames,
		userMapping:    make(map[string]string),
	}
}

// WatchlistTagID returns the configured watchlist marker tag id.
func (m *Manager) WatchlistTagID() int64 { return m.watchlistTagID }

// UpgradeTagID returns the configured upgrade marker tag id.
func (m *Manager) UpgradeTagID() int64 { return m.upgradeTagID }

// SetUserMapping replaces the fetched user id → name mapping used for
// attribution tags. Manual overrides still take precedence.
func (m *Manager) SetUserMapping(mapping map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userMapping = mapping
}

// GetOrCreate returns the tag id for a label, creating the tag in Radarr
// when it does not exist. Labels are matched case-insensitively.
func (m *Manager) GetOrCreate(ctx context.Context, label string) (int64, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return 0, fmt.Errorf("empty tag label")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, found := m.cache.Get(key); found {
		return id.(int64), nil
	}

	if !m.primed {
		existing, err := m.registry.GetTags(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch tags: %w", err)
		}
		for _, tag := range existing {
			m.cache.Set(strings.ToLower(tag.Label), tag.ID, gocache.NoExpiration)
		}
		m.primed = true
		if id, found := m.cache.Get(key); found {
			return id.(int64), nil
		}
	}

	created, err := m.registry.CreateTag(ctx, label)
	if err != nil {
		return 0, fmt.Errorf("failed to create tag %q: %w", label, err)
	}
	m.logger.WithFields(logrus.Fields{
		"label": label,
		"id":    created.ID,
	}).Info("Created Radarr tag")
	m.cache.Set(key, created.ID, gocache.NoExpiration)
	return created.ID, nil
}

// Invalidate drops the cached labels so the next lookup refetches from Radarr.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Flush()
	m.primed = false
}

// AttributionTag returns the friend attribution label for a source user id,
// or an empty string when the id is empty. Manual overrides win over the
// fetched mapping; unknown ids fall back to the default name.
func (m *Manager) AttributionTag(sourceUserID string) string {
	if sourceUserID == "" {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.manualNames[sourceUserID]
	if !ok {
		name, ok = m.userMapping[sourceUserID]
	}
	if !ok || name == "" {
		name = m.defaultName
	}
	return m.tagPrefix + name
}

// DesiredTags computes the tag id set a movie should carry: the current set
// with the upgrade tag added or removed by eligibility, plus the watchlist
// tag and the attribution tag when present. Unrelated tags are preserved.
func (m *Manager) DesiredTags(ctx context.Context, current []int64, upgradeEligible bool, attribution string) ([]int64, error) {
	result := append([]int64(nil), current...)

	if !containsID(result, m.watchlistTagID) {
		result = append(result, m.watchlistTagID)
	}
	if upgradeEligible {
		if !containsID(result, m.upgradeTagID) {
			result = append(result, m.upgradeTagID)
		}
	} else {
		result = RemoveID(result, m.upgradeTagID)
	}

	if attribution != "" {
		id, err := m.GetOrCreate(ctx, attribution)
		if err != nil {
			return nil, err
		}
		if !containsID(result, id) {
			result = append(result, id)
		}
	}
	return result, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// RemoveID returns the id set with every occurrence of one id removed.
func RemoveID(ids []int64, id int64) []int64 {
	result := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			result = append(result, v)
		}
	}
	return result
}

// UpgradeEligible reports whether a file size is strictly below the minimum
// size threshold in gigabytes. A zero size (no file yet) is eligible.
func UpgradeEligible(sizeOnDisk int64, minSizeGB float64) bool {
	threshold := int64(minSizeGB * 1024 * 1024 * 1024)
	return sizeOnDisk < threshold
}
