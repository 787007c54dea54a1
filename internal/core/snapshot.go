package core

// snapshot.go builds the study spreadsheet and publishes it atomically.
//
// The workbook is written to a temp file in the output directory and then
// renamed over the output path. Rename within one filesystem is atomic, so a
// reader of the output path sees either the previous complete file or the
// new complete file. Any failure before the rename deletes the temp file and
// leaves the published file untouched.

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// SheetName is the name of the single worksheet in the export.
const SheetName = "StudyData"

// XLSXContentType is the MIME type of the published file.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportColumns is the fixed header row of the export.
var ExportColumns = []string{
	"PIZ",
	"Examination Date",
	"Liver Ambulance Link",
	"Fibroscan LSM kPa",
	"Fibroscan CAP dBm",
	"Created At",
	"Updated At",
	"Created By",
	"Updated By",
}

// EntryLister supplies the rows of a snapshot.
type EntryLister interface {
	// ListEntriesForExport returns every entry ordered by
	// (examination date ASC, PIZ ASC).
	ListEntriesForExport(ctx context.Context) ([]Entry, error)
}

// SnapshotWriter turns the current entry set into the published spreadsheet.
// Run must only be called while holding the export lock for the output path.
type SnapshotWriter struct {
	entries EntryLister

	// save serializes the workbook; replaced in tests to simulate write failures.
	save func(f *excelize.File, w io.Writer) error
}

// NewSnapshotWriter creates a writer reading from entries.
func NewSnapshotWriter(entries EntryLister) *SnapshotWriter {
	return &SnapshotWriter{
		entries: entries,
		save: func(f *excelize.File, w io.Writer) error {
			return f.Write(w)
		},
	}
}

// Run writes a complete snapshot to outputPath and returns outputPath.
//
// Store read failures are returned as-is (wrapped with context). Filesystem
// failures wrap ErrExportFailed.
func (w *SnapshotWriter) Run(ctx context.Context, outputPath string) (string, error) {
	if _, err := w.write(ctx, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// write does the work of Run and reports how many entries were written.
func (w *SnapshotWriter) write(ctx context.Context, outputPath string) (int, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("%w: create output dir: %w", ErrExportFailed, err)
	}

	entries, err := w.entries.ListEntriesForExport(ctx)
	if err != nil {
		return 0, fmt.Errorf("load entries for export: %w", err)
	}

	f, err := buildWorkbook(entries)
	if err != nil {
		return 0, fmt.Errorf("%w: build workbook: %w", ErrExportFailed, err)
	}
	defer f.Close()

	if err := w.publish(f, outputPath); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// publish writes f next to outputPath and renames it into place.
func (w *SnapshotWriter) publish(f *excelize.File, outputPath string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), TempPattern(outputPath))
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrExportFailed, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = w.save(f, tmp); err != nil {
		return fmt.Errorf("%w: write temp file: %w", ErrExportFailed, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp file: %w", ErrExportFailed, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrExportFailed, err)
	}
	if err = os.Chmod(tmpName, 0o640); err != nil {
		return fmt.Errorf("%w: chmod temp file: %w", ErrExportFailed, err)
	}
	if err = os.Rename(tmpName, outputPath); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrExportFailed, outputPath, err)
	}
	return nil
}

// TempPattern is the os.CreateTemp pattern for in-progress snapshots of
// outputPath. The leading dot keeps them out of casual directory listings.
func TempPattern(outputPath string) string {
	return "." + filepath.Base(outputPath) + "-*.tmp"
}

// IsTempName reports whether name, a base name in the output directory, is a
// snapshot temp file of outputPath. The base name is compared literally, so
// glob characters in it match only themselves.
func IsTempName(outputPath, name string) bool {
	prefix := "." + filepath.Base(outputPath) + "-"
	const suffix = ".tmp"
	return len(name) > len(prefix)+len(suffix) &&
		strings.HasPrefix(name, prefix) &&
		strings.HasSuffix(name, suffix)
}

// buildWorkbook lays out the header and one row per entry, in the given order.
func buildWorkbook(entries []Entry) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}

	header := make([]any, len(ExportColumns))
	for i, col := range ExportColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		row := exportRow(e)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("row %d (%s %s): %w", i+2, e.PIZ, e.ExaminationDate.Format(DateLayout), err)
		}
	}

	return f, nil
}

// exportRow renders one entry in ExportColumns order.
// Measurements stay float64 so the spreadsheet stores numbers, not text.
func exportRow(e Entry) []any {
	return []any{
		e.PIZ,
		e.ExaminationDate.Format(DateLayout),
		yesNo(e.LiverAmbulanceLink),
		e.FibroscanLSMKPa,
		e.FibroscanCAPDbm,
		e.CreatedAt.Format(time.RFC3339Nano),
		e.UpdatedAt.Format(time.RFC3339Nano),
		e.CreatedBy,
		e.UpdatedBy,
	}
}
