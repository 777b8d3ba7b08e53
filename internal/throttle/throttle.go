// Package throttle decides whether a plugin may be fetched again: a simple
// per-plugin rate limit on accepted updates, and a separate failure-aware
// retry policy over the scrape log.
package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/openbeans/plugin-counter/internal/errs"
	"github.com/openbeans/plugin-counter/model"
)

const (
	retryWait      = 24 * time.Hour // wait after a failed attempt
	giveUpFailures = 3              // consecutive failures before giving up
	logScanLimit   = 10             // log entries consulted for the failure run
)

// SampleReader exposes the latest recorded sample for a plugin.
type SampleReader interface {
	LatestSample(ctx context.Context, pluginID string) (*model.Sample, error)
}

// LogReader exposes recent scrape attempts, most recent first.
type LogReader interface {
	RecentScrapeLogs(ctx context.Context, pluginID string, limit int) ([]model.ScrapeLogEntry, error)
}

// Policy evaluates update and retry eligibility against persisted history.
// The check is advisory: it reads then decides, so two concurrent updates
// inside one window may both pass. Readers take latest-wins per day, so a
// rare duplicate sample is tolerated.
type Policy struct {
	window time.Duration
	now    func() time.Time
}

// New creates a Policy with the given throttle window.
func New(window time.Duration) *Policy {
	return &Policy{window: window, now: time.Now}
}

// NewWithClock creates a Policy with an injected clock, for tests.
func NewWithClock(window time.Duration, now func() time.Time) *Policy {
	return &Policy{window: window, now: now}
}

// CanUpdate reports whether a new sample may be recorded: true when no
// sample exists or the latest one is at least the throttle window old.
func (p *Policy) CanUpdate(ctx context.Context, store SampleReader, pluginID string) (bool, error) {
	last, err := store.LatestSample(ctx, pluginID)
	if err != nil {
		if errors.Is(err, errs.ErrNoData) {
			return true, nil
		}
		return false, err
	}
	return p.now().Sub(last.Timestamp) >= p.window, nil
}

// ShouldRetryScrape reports whether a fetch should be attempted after prior
// failures: true with no log or after a success; false within 24 hours of
// a failure; false once the run of consecutive failures reaches 3 within
// the 10 most recent entries.
func (p *Policy) ShouldRetryScrape(ctx context.Context, logs LogReader, pluginID string) (bool, error) {
	recent, err := logs.RecentScrapeLogs(ctx, pluginID, logScanLimit)
	if err != nil {
		return false, err
	}
	if len(recent) == 0 {
		return true, nil
	}

	last := recent[0]
	if last.Success {
		return true, nil
	}

	if p.now().Sub(last.Timestamp) < retryWait {
		return false, nil
	}

	failures := 0
	for _, e := range recent {
		if e.Success {
			break
		}
		failures++
	}
	return failures < giveUpFailures, nil
}
