// Package refresh re-fetches tracked URLs on a fixed interval so cached
// payloads stay warm after their first request.
package refresh

import (
	"context"
	"log/slog"
	"time"
)

// Config configures the refresher.
type Config struct {
	// Interval between refresh cycles. Default: 1 hour.
	Interval time.Duration
	// Timeout bounds each individual URL refresh. Default: 10s.
	Timeout time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Lister returns the URLs to refresh.
type Lister func(ctx context.Context) ([]string, error)

// RefreshFunc re-fetches and re-caches one URL.
type RefreshFunc func(ctx context.Context, url string) error

// Purger drops expired cache entries.
type Purger func(ctx context.Context) (int64, error)

// Result summarises one refresh cycle.
type Result struct {
	OK      int
	Failed  int
	Purged  int64
	Elapsed time.Duration
}

// Refresher runs refresh cycles.
type Refresher struct {
	list    Lister
	refresh RefreshFunc
	purge   Purger
	config  Config
	logger  *slog.Logger
	// OnResult, if set, observes each per-URL outcome (metrics hook).
	OnResult func(url string, err error)
}

// New creates a Refresher. purge may be nil.
func New(list Lister, refresh RefreshFunc, purge Purger, cfg Config, logger *slog.Logger) *Refresher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		list:    list,
		refresh: refresh,
		purge:   purge,
		config:  cfg,
		logger:  logger,
	}
}

// Run executes a cycle on every tick. The first cycle runs one interval
// after start. Blocks until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every tracked URL sequentially. A failing URL is
// skipped; its previous cache entry is left untouched.
func (r *Refresher) RunOnce(ctx context.Context) Result {
	start := time.Now()
	var res Result

	urls, err := r.list(ctx)
	if err != nil {
		r.logger.Error("refresh: list tracked urls", "error", err)
		return res
	}

	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		uctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		err := r.refresh(uctx, u)
		cancel()
		if r.OnResult != nil {
			r.OnResult(u, err)
		}
		if err != nil {
			res.Failed++
			r.logger.Debug("refresh: skipped", "url", u, "error", err)
			continue
		}
		res.OK++
	}

	if r.purge != nil && ctx.Err() == nil {
		n, err := r.purge(ctx)
		if err != nil {
			r.logger.Warn("refresh: purge expired", "error", err)
		}
		res.Purged = n
	}

	res.Elapsed = time.Since(start)
	r.logger.Info("refresh: cycle done",
		"ok", res.OK, "failed", res.Failed, "purged", res.Purged, "elapsed", res.Elapsed)
	return res
}
