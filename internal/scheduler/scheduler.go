// Package scheduler runs the sync and upgrade jobs on fixed intervals,
// serializing each job kind through the file-lock gate.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"watchlistarr/internal/joblock"
)

// Job is one unit of scheduled work.
type Job interface {
	Run(ctx context.Context) error
}

// Scheduler owns the cron loop and the job lock gate.
type Scheduler struct {
	cron      *cron.Cron
	gate      joblock.Gate
	logger    *logrus.Logger
	bootstrap sync.WaitGroup
}

// NewScheduler creates a scheduler over the given lock gate.
func NewScheduler(gate joblock.Gate, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		gate:   gate,
		logger: logger,
	}
}

// AddJob schedules a job every intervalMinutes, wrapped in the lock gate so
// overlapping runs of the same job are skipped rather than queued.
func (s *Scheduler) AddJob(name string, intervalMinutes int, job Job) error {
	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	_, err := s.cron.AddFunc(spec, func() {
		s.RunOnce(context.Background(), name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"interval": spec,
	}).Info("Scheduled job")
	return nil
}

// RunOnce runs a job immediately under its lock. A held lock skips the run.
func (s *Scheduler) RunOnce(ctx context.Context, name string, job Job) {
	if !s.gate.TryAcquire(name) {
		s.logger.WithField("job", name).Info("Skipping run, job is already active")
		return
	}
	defer s.gate.Release(name)

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("job", name).Errorf("Job panicked: %v", r)
		}
	}()

	s.logger.WithField("job", name).Info("Starting job")
	if err := job.Run(ctx); err != nil {
		s.logger.WithError(err).WithField("job", name).Error("Job failed")
		return
	}
	s.logger.WithField("job", name).Info("Job finished")
}

// Bootstrap runs a job immediately in the background, outside the cron
// entries. Stop waits for bootstrap runs before releasing locks.
func (s *Scheduler) Bootstrap(ctx context.Context, name string, job Job) {
	s.bootstrap.Add(1)
	go func() {
		defer s.bootstrap.Done()
		s.RunOnce(ctx, name, job)
	}()
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts the cron loop, waits for running cron iterations and bootstrap
// runs, and only then releases any held locks.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.bootstrap.Wait()
	s.gate.ReleaseAll()
	s.logger.Info("Scheduler stopped")
}
