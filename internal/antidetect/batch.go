package antidetect

import (
	"fmt"
	"sync"
	"time"
)

// BatchLimitError is returned once a run has performed its maximum number of navigations
// or actions. The run must stop and a new batch may only begin after the cooldown.
type BatchLimitError struct {
	Limit    int
	Cooldown time.Duration
}

func (e *BatchLimitError) Error() string {
	return fmt.Sprintf("batch limit of %d reached; cool down for %s before starting a new batch", e.Limit, humanizeDuration(e.Cooldown))
}

// BatchCounter counts actions in a single run against a hard ceiling. It never resets;
// a new batch needs a new counter.
type BatchCounter struct {
	limit    int
	cooldown time.Duration

	mu    sync.Mutex
	count int
}

// NewBatchCounter creates a counter that refuses the (limit+1)-th action.
func NewBatchCounter(limit int, cooldown time.Duration) *BatchCounter {
	return &BatchCounter{limit: limit, cooldown: cooldown}
}

// Check fails fast with a *BatchLimitError when the ceiling has been reached.
func (b *BatchCounter) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count >= b.limit {
		return &BatchLimitError{Limit: b.limit, Cooldown: b.cooldown}
	}
	return nil
}

// Record counts one completed action.
func (b *BatchCounter) Record() {
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
}

// Count returns the number of recorded actions.
func (b *BatchCounter) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Remaining returns how many more actions the batch admits.
func (b *BatchCounter) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r := b.limit - b.count; r > 0 {
		return r
	}
	return 0
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return plural(int(d/time.Second), "second")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
