package core

import (
	"context"
	"time"
)

// DateLayout is the ISO date format used for examination dates on the wire
// and in the spreadsheet.
const DateLayout = "2006-01-02"

// Entry is one fibroscan examination of one study subject.
// (PIZ, ExaminationDate) is unique.
type Entry struct {
	ID                 int64     `json:"id"`
	PIZ                string    `json:"piz"`
	ExaminationDate    time.Time `json:"examinationDate"`
	LiverAmbulanceLink bool      `json:"liverAmbulanceLink"`
	FibroscanLSMKPa    float64   `json:"fibroscanLsmKpa"`
	FibroscanCAPDbm    float64   `json:"fibroscanCapDbm"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	CreatedBy          string    `json:"createdBy,omitempty"` // empty when the creator is unknown
	UpdatedBy          string    `json:"updatedBy,omitempty"`
}

// EntryInput carries the user-editable fields of an entry.
type EntryInput struct {
	PIZ                string    `json:"piz"`
	ExaminationDate    time.Time `json:"examinationDate"`
	LiverAmbulanceLink bool      `json:"liverAmbulanceLink"`
	FibroscanLSMKPa    float64   `json:"fibroscanLsmKpa"`
	FibroscanCAPDbm    float64   `json:"fibroscanCapDbm"`
}

// EntryFilter narrows the entry list. Zero values mean "no filter".
type EntryFilter struct {
	PIZ       string    // case-insensitive substring
	StartDate time.Time // inclusive
	EndDate   time.Time // inclusive
	Limit     int
	Offset    int
}

// EntryPage is one page of the entry list plus the total match count.
type EntryPage struct {
	Entries []Entry `json:"entries"`
	Total   int64   `json:"total"`
}

// Actor is the authenticated user a request acts on behalf of.
type Actor struct {
	Username string
	Staff    bool
}

// EntryStore persists entries. Implementations enforce the
// (PIZ, ExaminationDate) uniqueness and return ErrDuplicateEntry on conflict.
type EntryStore interface {
	CreateEntry(ctx context.Context, e Entry) (Entry, error)
	UpdateEntry(ctx context.Context, e Entry) (Entry, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	CountEntries(ctx context.Context, filter EntryFilter) (int64, error)

	// ListEntriesForExport returns every entry ordered by
	// (examination date ASC, PIZ ASC).
	ListEntriesForExport(ctx context.Context) ([]Entry, error)
}

// AuditStore is the append-only audit trail.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, ev AuditEvent) error
	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
	CountAuditEvents(ctx context.Context, filter AuditFilter) (int64, error)
}

// Instruction is an uploaded study instruction PDF.
type Instruction struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	FileName   string    `json:"fileName"` // name the file was uploaded as, used for downloads
	StoredName string    `json:"-"`        // file name inside the instruction directory
	SizeBytes  int64     `json:"sizeBytes"`
	UploadedAt time.Time `json:"uploadedAt"`
	UploadedBy string    `json:"uploadedBy,omitempty"`
}

// InstructionStore persists instruction metadata. The files live on disk.
type InstructionStore interface {
	CreateInstruction(ctx context.Context, in Instruction) (Instruction, error)
	GetInstruction(ctx context.Context, id int64) (Instruction, error)

	// ListInstructions returns every instruction, newest upload first.
	ListInstructions(ctx context.Context) ([]Instruction, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	EntryStore
	InstructionStore
	AuditStore
	Ping(ctx context.Context) error
	Close()
}
