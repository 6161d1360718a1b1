// Package joblock provides file-lock based mutual exclusion for scheduled
// jobs so sync and upgrade runs never overlap, including across processes.
package joblock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// Gate serializes named jobs.
type Gate interface {
	// TryAcquire attempts to take the lock for a job without blocking.
	TryAcquire(name string) bool
	// Release drops a held lock. Releasing an unheld lock is a no-op.
	Release(name string)
	// ReleaseAll drops every held lock, for shutdown.
	ReleaseAll()
}

// FileGate implements Gate with flock-backed lock files in a directory.
// The OS releases the locks if the process dies, so a stale lock file only
// ever means a previous unclean exit; staleness is logged but never breaks
// a lock that another live process still holds.
type FileGate struct {
	dir     string
	timeout time.Duration
	logger  *logrus.Logger

	mu   sync.Mutex
	held map[string]*flock.Flock
}

// NewFileGate creates a gate storing lock files under dir. A lock file older
// than timeout is reported as stale.
func NewFileGate(dir string, timeout time.Duration, logger *logrus.Logger) (*FileGate, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileGate{
		dir:     dir,
		timeout: timeout,
		logger:  logger,
		held:    make(map[string]*flock.Flock),
	}, nil
}

func (g *FileGate) lockPath(name string) string {
	return filepath.Join(g.dir, name+".lock")
}

// TryAcquire takes the named lock, returning false when another holder has
// it. Acquiring refreshes the lock file's timestamp.
func (g *FileGate) TryAcquire(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[name]; ok {
		g.logger.WithField("job", name).Warn("Lock already held by this process")
		return false
	}

	path := g.lockPath(name)
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		g.logger.WithError(err).WithField("job", name).Error("Failed to acquire job lock")
		return false
	}
	if !locked {
		g.logger.WithField("job", name).Info("Job lock held elsewhere, skipping run")
		g.reportStale(name, path)
		return false
	}

	if err := os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		g.logger.WithError(err).WithField("job", name).Warn("Failed to stamp lock file")
	}
	g.held[name] = lock
	return true
}

func (g *FileGate) reportStale(name, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	age := time.Since(info.ModTime())
	if age > g.timeout {
		g.logger.WithFields(logrus.Fields{
			"job": name,
			"age": age.Round(time.Second).String(),
		}).Warn("Lock file is stale, previous run may have exited uncleanly")
	}
}

// Release unlocks and removes the named lock file.
func (g *FileGate) Release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release(name)
}

// ReleaseAll drops every lock held by this gate.
func (g *FileGate) ReleaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name := range g.held {
		g.release(name)
	}
}

func (g *FileGate) release(name string) {
	lock, ok := g.held[name]
	if !ok {
		return
	}
	if err := lock.Unlock(); err != nil {
		g.logger.WithError(err).WithField("job", name).Warn("Failed to release job lock")
	}
	// Best effort; another process may already hold a fresh lock on the path.
	_ = os.Remove(g.lockPath(name))
	delete(g.held, name)
}
