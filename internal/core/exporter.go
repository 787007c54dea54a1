package core

// exporter.go composes the export lock, the snapshot writer and the audit
// sink into the single "request export" operation.
//
// The exporter also counts in-flight exports so graceful shutdown can wait
// for a running export to rename its temp file instead of abandoning it.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/JonMunkholm/studydata/internal/logging"
)

// Exporter runs exports of the entry set to one configured output path.
type Exporter struct {
	outputPath string
	writer     *SnapshotWriter
	audit      AuditSink
	metrics    *Metrics

	mu     sync.RWMutex
	active int
}

// NewExporter creates an exporter publishing to outputPath.
// metrics may be nil.
func NewExporter(outputPath string, writer *SnapshotWriter, audit AuditSink, metrics *Metrics) *Exporter {
	return &Exporter{
		outputPath: outputPath,
		writer:     writer,
		audit:      audit,
		metrics:    metrics,
	}
}

// OutputPath returns the published file path.
func (e *Exporter) OutputPath() string {
	return e.outputPath
}

// Export publishes a fresh snapshot on behalf of actor and returns its path.
//
// Returns an error wrapping ErrExportBusy when another export holds the lock;
// nothing is written or audited in that case. Other failures leave the
// published file unchanged and are audited as export_failed. A failing audit
// write after a successful export is logged and does not fail the export.
func (e *Exporter) Export(ctx context.Context, actor string) (string, error) {
	logger := logging.WithFields(ctx, "path", e.outputPath, "actor", actor)

	e.track(1)
	defer e.track(-1)

	start := time.Now()
	var rows int
	err := WithExportLock(e.outputPath, func() error {
		n, err := e.writer.write(ctx, e.outputPath)
		rows = n
		return err
	})
	duration := time.Since(start)

	switch {
	case errors.Is(err, ErrExportBusy):
		logger.Info("export rejected, another export is running")
		e.observe(OutcomeBusy, 0, 0)
		return "", fmt.Errorf("run export: %w", err)

	case err != nil:
		logger.Error("export failed", "error", err, "duration_ms", duration.Milliseconds())
		e.observe(OutcomeFailed, duration, 0)
		e.record(ctx, logger, ActionExportFailed, actor, err.Error())
		return "", fmt.Errorf("run export: %w", err)
	}

	logger.Info("export published", "rows", rows, "duration_ms", duration.Milliseconds())
	e.observe(OutcomeSuccess, duration, rows)
	e.record(ctx, logger, ActionExport, actor, e.outputPath)
	return e.outputPath, nil
}

// Open opens the currently published file for reading. It needs no lock:
// the file at the output path is only ever replaced by rename.
func (e *Exporter) Open() (*os.File, os.FileInfo, error) {
	f, err := os.Open(e.outputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNoExport
		}
		return nil, nil, fmt.Errorf("open export: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat export: %w", err)
	}
	return f, info, nil
}

// record appends an audit event, best effort.
func (e *Exporter) record(ctx context.Context, logger *slog.Logger, action AuditAction, actor, details string) {
	if e.audit == nil {
		return
	}
	if _, err := e.audit.Record(ctx, action, actor, details); err != nil {
		logger.Warn("audit write failed", "action", string(action), "error", err)
		if e.metrics != nil {
			e.metrics.AuditWriteFailures.Inc()
		}
	}
}

func (e *Exporter) observe(outcome string, d time.Duration, rows int) {
	if e.metrics == nil {
		return
	}
	e.metrics.ExportsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeBusy {
		return
	}
	e.metrics.ExportDuration.Observe(d.Seconds())
	if outcome == OutcomeSuccess {
		e.metrics.ExportRows.Set(float64(rows))
		e.metrics.LastExportSuccess.SetToCurrentTime()
	}
}

func (e *Exporter) track(delta int) {
	e.mu.Lock()
	e.active += delta
	e.mu.Unlock()
}

// ActiveCount returns the number of Export calls currently running,
// including ones about to be rejected as busy.
func (e *Exporter) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// WaitForExports blocks until no export is running or ctx is done.
// Used for graceful shutdown.
func (e *Exporter) WaitForExports(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if e.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
