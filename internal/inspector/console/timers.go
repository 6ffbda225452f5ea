package console

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTimer is returned when ending a timer that was never started.
var ErrUnknownTimer = errors.New("unknown timer")

// Timers tracks console.time() start times by label.
type Timers struct {
	started map[string]time.Time
	now     func() time.Time
}

// NewTimers creates an empty timer table. A nil clock selects time.Now.
func NewTimers(now func() time.Time) *Timers {
	if now == nil {
		now = time.Now
	}
	return &Timers{started: make(map[string]time.Time), now: now}
}

// Start records the start time of label. Restarting a running label keeps the
// first start time.
func (t *Timers) Start(label string) {
	if _, ok := t.started[label]; ok {
		return
	}
	t.started[label] = t.now()
}

// Stop removes label and returns the time since it was started.
func (t *Timers) Stop(label string) (time.Duration, error) {
	start, ok := t.started[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimer, label)
	}
	delete(t.started, label)
	return t.now().Sub(start), nil
}

// Len returns the number of running timers.
func (t *Timers) Len() int { return len(t.started) }

// Clear drops every running timer.
func (t *Timers) Clear() {
	t.started = make(map[string]time.Time)
}

// Counters tracks console.count() invocations by call site.
type Counters struct {
	counts map[string]int
}

// NewCounters creates an empty counter table.
func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int)}
}

// Count increments the counter for title at url:line and returns the new
// count along with the "title: n" text reported to the console.
func (c *Counters) Count(title, url string, line int) (int, string) {
	key := fmt.Sprintf("%s@%s:%d", title, url, line)
	c.counts[key]++
	n := c.counts[key]
	return n, fmt.Sprintf("%s: %d", title, n)
}

// Len returns the number of distinct counters.
func (c *Counters) Len() int { return len(c.counts) }

// Clear drops every counter.
func (c *Counters) Clear() {
	c.counts = make(map[string]int)
}
