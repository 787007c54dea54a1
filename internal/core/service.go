package core

import (
	"context"
	"fmt"
	"time"
)

// Service provides the entry operations behind the web layer and owns the
// exporter and audit service wired to the same store.
type Service struct {
	store        Store
	audit        *AuditService
	exporter     *Exporter
	instructions *InstructionLibrary
	now          func() time.Time
}

// NewService creates a Service. The exporter and audit service are built by
// the caller so they can be shared with background jobs.
func NewService(store Store, audit *AuditService, exporter *Exporter, instructions *InstructionLibrary) *Service {
	return &Service{
		store:        store,
		audit:        audit,
		exporter:     exporter,
		instructions: instructions,
		now:          time.Now,
	}
}

// Audit returns the audit service.
func (s *Service) Audit() *AuditService {
	return s.audit
}

// Exporter returns the spreadsheet exporter.
func (s *Service) Exporter() *Exporter {
	return s.exporter
}

// Instructions returns the instruction library.
func (s *Service) Instructions() *InstructionLibrary {
	return s.instructions
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateEntry validates and stores a new entry created by actor.
func (s *Service) CreateEntry(ctx context.Context, actor Actor, in EntryInput) (Entry, error) {
	if err := ValidateEntry(in, s.now()).Err(); err != nil {
		return Entry{}, err
	}
	in = in.normalize()

	now := s.now().UTC()
	created, err := s.store.CreateEntry(ctx, Entry{
		PIZ:                in.PIZ,
		ExaminationDate:    in.ExaminationDate,
		LiverAmbulanceLink: in.LiverAmbulanceLink,
		FibroscanLSMKPa:    in.FibroscanLSMKPa,
		FibroscanCAPDbm:    in.FibroscanCAPDbm,
		CreatedAt:          now,
		UpdatedAt:          now,
		CreatedBy:          actor.Username,
		UpdatedBy:          actor.Username,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("create entry: %w", err)
	}

	s.recordBestEffort(ctx, ActionEntryCreate, actor.Username, fmt.Sprintf("entry_id=%d", created.ID))
	return created, nil
}

// UpdateEntry replaces the editable fields of entry id.
// Only staff or the entry's creator may edit it.
func (s *Service) UpdateEntry(ctx context.Context, actor Actor, id int64, in EntryInput) (Entry, error) {
	if err := ValidateEntry(in, s.now()).Err(); err != nil {
		return Entry{}, err
	}
	in = in.normalize()

	existing, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("load entry %d: %w", id, err)
	}
	if !CanEdit(actor, existing) {
		return Entry{}, ErrForbidden
	}

	existing.PIZ = in.PIZ
	existing.ExaminationDate = in.ExaminationDate
	existing.LiverAmbulanceLink = in.LiverAmbulanceLink
	existing.FibroscanLSMKPa = in.FibroscanLSMKPa
	existing.FibroscanCAPDbm = in.FibroscanCAPDbm
	existing.UpdatedAt = s.now().UTC()
	existing.UpdatedBy = actor.Username

	updated, err := s.store.UpdateEntry(ctx, existing)
	if err != nil {
		return Entry{}, fmt.Errorf("update entry %d: %w", id, err)
	}

	s.recordBestEffort(ctx, ActionEntryUpdate, actor.Username, fmt.Sprintf("entry_id=%d", updated.ID))
	return updated, nil
}

// CanEdit reports whether actor may modify e.
func CanEdit(actor Actor, e Entry) bool {
	return actor.Staff || (actor.Username != "" && e.CreatedBy == actor.Username)
}

// GetEntry returns one entry.
func (s *Service) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	return e, nil
}

// ListEntries returns one page of entries, newest examination first.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) (EntryPage, error) {
	filter.Limit = pageLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	entries, err := s.store.ListEntries(ctx, filter)
	if err != nil {
		return EntryPage{}, fmt.Errorf("list entries: %w", err)
	}
	total, err := s.store.CountEntries(ctx, filter)
	if err != nil {
		return EntryPage{}, fmt.Errorf("count entries: %w", err)
	}
	return EntryPage{Entries: entries, Total: total}, nil
}

// Export runs the spreadsheet export on behalf of actor.
func (s *Service) Export(ctx context.Context, actor Actor) (string, error) {
	return s.exporter.Export(ctx, actor.Username)
}

// recordBestEffort audits a change that has already been committed. The
// failure is logged by the audit service and must not undo the change.
func (s *Service) recordBestEffort(ctx context.Context, action AuditAction, actor, details string) {
	if _, err := s.audit.Record(ctx, action, actor, details); err != nil {
		s.audit.logger.WarnContext(ctx, "audit write failed", "action", string(action), "error", err)
	}
}
