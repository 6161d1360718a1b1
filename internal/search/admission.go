package search

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Policy decides whether an item's search history permits another search.
type Policy interface {
	Permits(lastSearch *time.Time, now time.Time) bool
}

// PolicyAlways permits a search regardless of history.
type PolicyAlways struct{}

func (PolicyAlways) Permits(*time.Time, time.Time) bool { return true }

// PolicyFirstOnly permits a search only when the item has never been searched.
type PolicyFirstOnly struct{}

func (PolicyFirstOnly) Permits(lastSearch *time.Time, _ time.Time) bool {
	return lastSearch == nil || lastSearch.IsZero()
}

// Cooldown permits a search when at least Duration has elapsed since the
// last one. Never-searched items are always permitted.
type Cooldown struct {
	Duration time.Duration
}

func (c Cooldown) Permits(lastSearch *time.Time, now time.Time) bool {
	if lastSearch == nil || lastSearch.IsZero() {
		return true
	}
	return now.Sub(*lastSearch) >= c.Duration
}

// Limits caps searches per day and per run. Nil means unlimited.
type Limits struct {
	GlobalDaily *int
	PerRun      *int
}

// Run tracks search admission for a single job invocation.
type Run struct {
	counter    *DailyCounter
	limits     Limits
	logger     *logrus.Logger
	now        func() time.Time
	runCount   int
	dailyCount int
}

// NewRun loads today's counter state and returns a fresh run.
func NewRun(counter *DailyCounter, limits Limits, logger *logrus.Logger) *Run {
	return &Run{
		counter:    counter,
		limits:     limits,
		logger:     logger,
		now:        time.Now,
		dailyCount: counter.Read(),
	}
}

// Admit reports whether a search may proceed for an item whose last search
// was at lastSearch. Caps are checked before the policy so cap exhaustion
// short-circuits history parsing.
func (r *Run) Admit(lastSearch *time.Time, policy Policy) bool {
	if !r.CapsAllow() {
		return false
	}
	return policy.Permits(lastSearch, r.now())
}

// CapsAllow reports whether the daily and per-run caps alone permit another
// search, ignoring any per-item policy.
func (r *Run) CapsAllow() bool {
	if r.limits.GlobalDaily != nil && r.dailyCount >= *r.limits.GlobalDaily {
		return false
	}
	if r.limits.PerRun != nil && r.runCount >= *r.limits.PerRun {
		return false
	}
	return true
}

// RecordSearch counts a triggered search against both caps and persists the
// daily counter.
func (r *Run) RecordSearch() {
	r.runCount++
	r.dailyCount++
	if err := r.counter.Save(r.dailyCount); err != nil {
		r.logger.WithError(err).Warn("Failed to persist daily search counter")
	}
}

// RecordDryRun counts a would-be search against both caps without touching
// the persisted counter, so dry runs make the same admission decisions.
func (r *Run) RecordDryRun() {
	r.runCount++
	r.dailyCount++
}

// SearchesThisRun returns the number of searches triggered by this run.
func (r *Run) SearchesThisRun() int { return r.runCount }

// SearchesToday returns today's total search count including this run.
func (r *Run) SearchesToday() int { return r.dailyCount }
