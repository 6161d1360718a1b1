// Package search gates Radarr search triggers behind daily and per-run caps
// plus per-item recency policies.
package search

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DailyCounter persists a date-scoped search count to a JSON file. The count
// resets whenever the stored date is not today; a missing or corrupt file
// counts as zero.
type DailyCounter struct {
	path string
	now  func() time.Time
}

// NewDailyCounter creates a counter persisted at path.
func NewDailyCounter(path string) *DailyCounter {
	return &DailyCounter{path: path, now: time.Now}
}

type counterState struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Read returns today's search count.
func (c *DailyCounter) Read() int {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return 0
	}
	var state counterState
	if err := json.Unmarshal(data, &state); err != nil {
		return 0
	}
	if state.Date != c.today() {
		return 0
	}
	return state.Count
}

// Save persists a count for today.
func (c *DailyCounter) Save(count int) error {
	data, err := json.Marshal(counterState{Date: c.today(), Count: count})
	if err != nil {
		return fmt.Errorf("failed to encode counter: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write counter file: %w", err)
	}
	return nil
}

func (c *DailyCounter) today() string {
	return c.now().Format("2006-01-02")
}
