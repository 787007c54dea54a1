package core

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
)

// ============================================================================
// Export Benchmarks
// ============================================================================

func benchEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = sampleEntry(fmt.Sprintf("PIZ%06d", i), dateOnly(2024, 1+i%12, 1+i%28), i%2 == 0, 8.5, 240, "alice")
	}
	return entries
}

// BenchmarkBuildWorkbook measures laying out rows without touching disk.
func BenchmarkBuildWorkbook(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		entries := benchEntries(n)
		b.Run(fmt.Sprintf("rows=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				f, err := buildWorkbook(entries)
				if err != nil {
					b.Fatal(err)
				}
				if err := f.Write(io.Discard); err != nil {
					b.Fatal(err)
				}
				f.Close()
			}
		})
	}
}

// BenchmarkExport measures a full lock, write, rename and audit cycle.
func BenchmarkExport(b *testing.B) {
	store := newFakeStore(benchEntries(1000)...)
	out := filepath.Join(b.TempDir(), "study_export.xlsx")
	exp := NewExporter(out, NewSnapshotWriter(store), &captureSink{}, nil)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := exp.Export(ctx, "bench"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAcquireExportLock measures an uncontended acquire/release.
func BenchmarkAcquireExportLock(b *testing.B) {
	out := filepath.Join(b.TempDir(), "study_export.xlsx")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lock, err := AcquireExportLock(out)
		if err != nil {
			b.Fatal(err)
		}
		lock.Release()
	}
}
