package core

import "errors"

// ErrExportBusy is returned when another export holds the export lock.
// Nothing was written; the caller should retry later.
var ErrExportBusy = errors.New("export in progress, try again later")

// ErrExportFailed wraps every export failure other than ErrExportBusy.
// The published file is unchanged when it is returned.
var ErrExportFailed = errors.New("export failed")

// ErrNoExport is returned when the published spreadsheet does not exist yet.
var ErrNoExport = errors.New("no export available")

// ErrEntryNotFound is returned when an entry id does not exist.
var ErrEntryNotFound = errors.New("entry not found")

// ErrDuplicateEntry is returned when (PIZ, examination date) already exists.
var ErrDuplicateEntry = errors.New("duplicate entry for piz and examination date")

// ErrInvalidEntry wraps validation failures.
var ErrInvalidEntry = errors.New("invalid entry")

// ErrForbidden is returned when the actor may not modify an entry.
var ErrForbidden = errors.New("not allowed to edit this entry")

// ErrInvalidInstruction wraps rejected instruction uploads.
var ErrInvalidInstruction = errors.New("invalid instruction upload")

// ErrInstructionNotFound is returned when an instruction or its file does not exist.
var ErrInstructionNotFound = errors.New("instruction not found")

// ErrStaffOnly is returned when a non-staff actor uploads an instruction.
var ErrStaffOnly = errors.New("staff only")
