package progress

import (
	"time"

	"github.com/sbomtools/sbomshift/pkg/log"
)

// DefaultInterval is how many elements pass between progress reports.
const DefaultInterval = 1000

// Tracker counts processed items for one invocation. It is plain local
// state, injected into the decoders, so concurrent invocations never share
// counters.
type Tracker struct {
	interval      int
	elements      int
	relationships int
	lastReport    int
	start         time.Time
	logger        *log.Logger
}

// New returns a tracker that reports every interval elements.
func New(interval int) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{
		interval: interval,
		start:    time.Now(),
		logger:   log.WithPrefix("progress"),
	}
}

// Element records one processed element, reporting on the configured cadence.
func (t *Tracker) Element() {
	t.elements++
	if t.elements-t.lastReport >= t.interval {
		t.lastReport = t.elements
		elapsed := time.Since(t.start).Seconds()
		rate := float64(t.elements) / elapsed
		t.logger.Info("Processing elements",
			log.Int("count", t.elements),
			log.Int("per_second", int(rate)))
	}
}

// Relationship records one processed relationship (silent).
func (t *Tracker) Relationship() {
	t.relationships++
}

// Finish logs final statistics for the run.
func (t *Tracker) Finish() {
	t.logger.Info("Run complete",
		log.Int("elements", t.elements),
		log.Int("relationships", t.relationships),
		log.String("elapsed", time.Since(t.start).Round(time.Millisecond).String()))
}

// Elements returns the running element count.
func (t *Tracker) Elements() int { return t.elements }

// Relationships returns the running relationship count.
func (t *Tracker) Relationships() int { return t.relationships }
