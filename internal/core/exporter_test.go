package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestExporter(t *testing.T, store *fakeStore, sink AuditSink) (*Exporter, *Metrics) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "instance", "study_export.xlsx")
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewExporter(out, NewSnapshotWriter(store), sink, metrics), metrics
}

func TestExporter_ExportAudits(t *testing.T) {
	store := newFakeStore(sampleEntry("PIZ001", dateOnly(2024, 1, 1), true, 8.5, 240, "alice"))
	sink := &captureSink{}
	exp, metrics := newTestExporter(t, store, sink)

	path, err := exp.Export(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if path != exp.OutputPath() {
		t.Errorf("Export() = %q, want %q", path, exp.OutputPath())
	}

	events := sink.recorded()
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Action != ActionExport || ev.Actor != "alice" || ev.Details != path {
		t.Errorf("audit event = %+v, want export by alice with path", ev)
	}

	if got := testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ExportRows); got != 1 {
		t.Errorf("rows gauge = %v, want 1", got)
	}
}

func TestExporter_AuditFailureDoesNotFailExport(t *testing.T) {
	store := newFakeStore(sampleEntry("PIZ001", dateOnly(2024, 1, 1), true, 8.5, 240, "alice"))
	sink := &captureSink{err: errors.New("audit table missing")}
	exp, metrics := newTestExporter(t, store, sink)

	if _, err := exp.Export(context.Background(), "alice"); err != nil {
		t.Fatalf("Export() error = %v, want nil", err)
	}
	if got := testutil.ToFloat64(metrics.AuditWriteFailures); got != 1 {
		t.Errorf("audit failures = %v, want 1", got)
	}
}

func TestExporter_BusyIsNotAudited(t *testing.T) {
	store := newFakeStore()
	sink := &captureSink{}
	exp, metrics := newTestExporter(t, store, sink)

	lock, err := AcquireExportLock(exp.OutputPath())
	if err != nil {
		t.Fatalf("AcquireExportLock() error = %v", err)
	}
	defer lock.Release()

	start := time.Now()
	_, err = exp.Export(context.Background(), "bob")
	if !errors.Is(err, ErrExportBusy) {
		t.Fatalf("Export() error = %v, want ErrExportBusy", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("busy export did not return promptly")
	}
	if n := len(sink.recorded()); n != 0 {
		t.Errorf("audit events = %d, want 0", n)
	}
	if got := testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues(OutcomeBusy)); got != 1 {
		t.Errorf("busy count = %v, want 1", got)
	}
}

func TestExporter_FailureIsAudited(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("connection reset by peer")
	sink := &captureSink{}
	exp, metrics := newTestExporter(t, store, sink)

	if _, err := exp.Export(context.Background(), "carol"); err == nil {
		t.Fatal("Export() error = nil, want failure")
	}

	events := sink.recorded()
	if len(events) != 1 || events[0].Action != ActionExportFailed {
		t.Fatalf("audit events = %+v, want one export_failed", events)
	}
	if !strings.Contains(events[0].Details, "connection reset") {
		t.Errorf("details = %q, want cause", events[0].Details)
	}
	if got := testutil.ToFloat64(metrics.ExportsTotal.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Errorf("failed count = %v, want 1", got)
	}

	// The lock was released, so a later export succeeds.
	store.listErr = nil
	if _, err := exp.Export(context.Background(), "carol"); err != nil {
		t.Errorf("Export() after failure error = %v", err)
	}
}

func TestExporter_ConcurrentExportsOneWins(t *testing.T) {
	store := newFakeStore(sampleEntry("PIZ001", dateOnly(2024, 1, 1), true, 8.5, 240, "alice"))
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	store.exportHook = func() {
		once.Do(func() { close(entered) })
		<-release
	}
	sink := &captureSink{}
	exp, _ := newTestExporter(t, store, sink)

	firstErr := make(chan error, 1)
	go func() {
		_, err := exp.Export(context.Background(), "alice")
		firstErr <- err
	}()
	<-entered

	if _, err := exp.Export(context.Background(), "bob"); !errors.Is(err, ErrExportBusy) {
		t.Errorf("second Export() error = %v, want ErrExportBusy", err)
	}
	if exp.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", exp.ActiveCount())
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first Export() error = %v", err)
	}
	if events := sink.recorded(); len(events) != 1 || events[0].Actor != "alice" {
		t.Errorf("audit events = %+v, want one by alice", events)
	}
}

func TestExporter_Open(t *testing.T) {
	store := newFakeStore()
	exp, _ := newTestExporter(t, store, &captureSink{})

	if _, _, err := exp.Open(); !errors.Is(err, ErrNoExport) {
		t.Fatalf("Open() before export error = %v, want ErrNoExport", err)
	}

	if _, err := exp.Export(context.Background(), "alice"); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	f, info, err := exp.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	if info.Size() == 0 {
		t.Error("published file is empty")
	}
}

func TestExporter_WaitForExports(t *testing.T) {
	store := newFakeStore()
	release := make(chan struct{})
	entered := make(chan struct{})
	store.exportHook = func() {
		close(entered)
		<-release
	}
	exp, _ := newTestExporter(t, store, &captureSink{})

	go exp.Export(context.Background(), "alice")
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := exp.WaitForExports(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForExports() while running = %v, want deadline exceeded", err)
	}

	close(release)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := exp.WaitForExports(ctx2); err != nil {
		t.Errorf("WaitForExports() = %v, want nil", err)
	}
}
