// Package core provides the business logic for recording study entries and
// exporting them to a spreadsheet.
//
// This package contains all domain logic independent of any UI, transport or
// database driver. It can be used by web handlers, jobs, or tests without
// modification; stores are injected through the [EntryStore] and [AuditStore]
// interfaces.
//
// # Export Pipeline
//
// [Exporter.Export] is the only way the published spreadsheet changes:
//
//  1. [AcquireExportLock] takes a non-blocking advisory lock on the file
//     next to the output path (output path + ".lock"). If another export
//     holds it, [ErrExportBusy] is returned immediately and nothing is written.
//  2. [SnapshotWriter.Run] reads every entry ordered by (examination date, PIZ),
//     writes the workbook to a temp file in the same directory and renames it
//     over the output path. Readers see the old file or the new file, never
//     a partial one.
//  3. The lock is released on every exit path, then an "export" audit event
//     is appended ("export_failed" when the snapshot could not be written;
//     nothing for a busy rejection). A failing audit write is logged and does
//     not fail the export.
//
// [TempSweeper] removes temp files orphaned by a crash, under the same lock.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - EXP001-EXP003: Export errors (busy, write failure, nothing exported)
//   - ENT001-ENT004: Entry errors (duplicate, not found, invalid, forbidden)
//   - DB001-DB006: Database errors (constraints, connections)
//
// # Audit Logging
//
// Every entry create/update and every export is recorded by [AuditService],
// which appends to the audit store and mirrors the event to the audit log file.
package core
