// Package cleanup provides the background worker that closes idle dashboard
// sessions and drops stale content maps.
package cleanup

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
)

// SessionReaper closes dashboard sessions idle for longer than maxIdle.
type SessionReaper interface {
	ReapIdle(maxIdle time.Duration) []string
	Len() int
}

// Worker handles background cleanup operations
type Worker struct {
	sessions SessionReaper
	contents *stores.ContentMapStore
	config   *Config
	logger   *logging.ChanneledLogger
	now      func() time.Time
	out      io.Writer
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(sessions SessionReaper, contents *stores.ContentMapStore, config *Config, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		sessions: sessions,
		contents: contents,
		config:   config,
		logger:   logger,
		now:      time.Now,
		out:      os.Stdout,
	}
}

// Serve runs cleanup passes on the configured interval until ctx is done.
func (w *Worker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.System().Info("Cleanup worker started", "interval", w.config.CleanupInterval, "verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown().Info("Cleanup worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// Result summarises one cleanup pass.
type Result struct {
	ReapedSessions []string
	DroppedMaps    []string
	Remaining      int
	Duration       time.Duration
}

// RunOnce performs a single cleanup pass.
func (w *Worker) RunOnce() Result {
	start := w.now()
	var res Result

	if w.sessions != nil {
		res.ReapedSessions = w.sessions.ReapIdle(w.config.DashboardIdleTTL)
		res.Remaining = w.sessions.Len()
	}
	if w.contents != nil && w.config.ContentMapMaxAge > 0 {
		res.DroppedMaps = w.contents.Sweep(start.Add(-w.config.ContentMapMaxAge))
	}
	res.Duration = w.now().Sub(start)

	if n := len(res.ReapedSessions) + len(res.DroppedMaps); n > 0 {
		w.logger.Cache().Info("Cleanup pass finished",
			"reapedSessions", len(res.ReapedSessions),
			"droppedContentMaps", len(res.DroppedMaps),
			"remainingSessions", res.Remaining,
			"duration", res.Duration)
	}
	if w.config.VerboseReporting {
		NewReporter(w.out).Report(res)
	}
	return res
}
