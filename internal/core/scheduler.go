package core

// scheduler.go removes export temp files that were never renamed into place.
//
// A temp file is orphaned when the process dies between creating it and the
// rename. The sweep takes the export lock first, so it can never delete the
// temp file of a running export; if an export holds the lock the cycle is
// skipped and the next one tries again.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepConfig holds configuration for the temp file sweeper.
type SweepConfig struct {
	Schedule string        // cron expression or descriptor, e.g. "@hourly"
	MaxAge   time.Duration // only files older than this are removed
}

// TempSweeper periodically removes orphaned snapshot temp files.
type TempSweeper struct {
	outputPath string
	cfg        SweepConfig
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	wg      sync.WaitGroup
}

// NewTempSweeper creates a sweeper for the temp files of outputPath.
// metrics may be nil.
func NewTempSweeper(outputPath string, cfg SweepConfig, metrics *Metrics) *TempSweeper {
	return &TempSweeper{
		outputPath: outputPath,
		cfg:        cfg,
		metrics:    metrics,
		logger:     slog.Default().With("component", "export.sweeper"),
		now:        time.Now,
		cron:       cron.New(),
	}
}

// Start schedules the sweep and runs one immediately. An empty schedule
// disables the sweeper. The sweeper stops when ctx is cancelled.
func (s *TempSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule == "" {
		s.logger.Info("temp sweep schedule not configured, skipping sweeper")
		return nil
	}

	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.runSweep() }); err != nil {
		return fmt.Errorf("schedule temp sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("temp sweeper started",
		"schedule", s.cfg.Schedule,
		"max_age", s.cfg.MaxAge.String(),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSweep()
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *TempSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		s.running = false
		s.logger.Info("temp sweeper stopped")
	}
}

// runSweep performs one cycle and logs the outcome.
func (s *TempSweeper) runSweep() {
	removed, err := s.Sweep()
	switch {
	case errors.Is(err, ErrExportBusy):
		s.logger.Debug("temp sweep skipped, export in progress")
	case err != nil:
		s.logger.Error("temp sweep failed", "error", err)
	case removed > 0:
		s.logger.Info("removed orphaned export temp files", "removed", removed)
	default:
		s.logger.Debug("temp sweep completed, nothing to remove")
	}
}

// Sweep removes temp files older than MaxAge while holding the export lock.
// Returns ErrExportBusy without touching anything when an export is running.
func (s *TempSweeper) Sweep() (int, error) {
	removed := 0
	err := WithExportLock(s.outputPath, func() error {
		dir := filepath.Dir(s.outputPath)
		dirEntries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", dir, err)
		}

		cutoff := s.now().Add(-s.cfg.MaxAge)
		var errs []error
		for _, de := range dirEntries {
			if !IsTempName(s.outputPath, de.Name()) {
				continue
			}
			path := filepath.Join(dir, de.Name())
			info, err := de.Info()
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					errs = append(errs, err)
				}
				continue
			}
			if info.IsDir() || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			removed++
		}
		return errors.Join(errs...)
	})

	if removed > 0 && s.metrics != nil {
		s.metrics.TempFilesSwept.Add(float64(removed))
	}
	return removed, err
}
