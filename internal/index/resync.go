package index

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/starford/notecanvas/internal/storage"
)

// Resync runs Sync on a cron schedule so changes the watcher missed
// (network mounts, a watcher restart) still reach the index.
type Resync struct {
	cron *cron.Cron
}

// StartResync schedules Sync with a standard cron expression or a descriptor
// such as "@every 10m". An empty schedule disables it and returns nil.
func StartResync(schedule string, db *DB, store storage.Provider, logger *slog.Logger) (*Resync, error) {
	if schedule == "" {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := Sync(db, store, logger); err != nil {
			logger.Warn("resync: failed", slog.String("error", err.Error()))
			return
		}
		logger.Debug("resync: done")
	})
	if err != nil {
		return nil, fmt.Errorf("index: invalid resync schedule %q: %w", schedule, err)
	}
	c.Start()
	logger.Info("resync: scheduled", slog.String("schedule", schedule))
	return &Resync{cron: c}, nil
}

// Stop halts the schedule and waits for a running sync to finish.
func (r *Resync) Stop() {
	if r == nil {
		return
	}
	<-r.cron.Stop().Done()
}
