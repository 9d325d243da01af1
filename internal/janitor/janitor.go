// Package janitor sweeps orphaned sandbox directories on a cron schedule.
// Sandboxes normally die with their lifecycle record; a crashed run can leave
// workspace directories behind, and the janitor reclaims them once they pass
// the age threshold.
package janitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically removes stale sandbox directories.
type Janitor struct {
	root     string
	maxAge   time.Duration
	schedule cron.Schedule
	logger   *slog.Logger
}

// New creates a Janitor sweeping root on the given cron expression. Directory
// entries older than maxAge are removed.
func New(root, expression string, maxAge time.Duration, logger *slog.Logger) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Janitor{
		root:     root,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start begins the sweep loop. Returns a cancel function.
func (j *Janitor) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		j.logger.Info("janitor started",
			slog.String("root", j.root),
			slog.Duration("max_age", j.maxAge),
		)
		for {
			next := j.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				j.logger.Info("janitor stopped")
				return
			case <-timer.C:
				if n, err := j.SweepOnce(); err != nil {
					j.logger.Error("sweep failed", slog.Any("error", err))
				} else if n > 0 {
					j.logger.Info("sweep reclaimed sandboxes", slog.Int("count", n))
				}
			}
		}
	}()

	return cancel
}

// SweepOnce removes every sandbox directory under the root older than the age
// threshold and returns the number removed. Individual removal failures are
// logged and skipped.
func (j *Janitor) SweepOnce() (int, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading sandbox root %s: %w", j.root, err)
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("removing stale sandbox failed",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}
		j.logger.Info("removed stale sandbox",
			slog.String("sandbox", entry.Name()),
			slog.Time("mod_time", info.ModTime()),
		)
		removed++
	}
	return removed, nil
}
