package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeStore is an in-memory Store for core tests.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]Entry
	events  []AuditEvent

	instructions   []Instruction
	instructionErr error // returned by CreateInstruction

	listErr   error // returned by ListEntriesForExport
	appendErr error // returned by AppendAuditEvent

	// exportHook runs inside ListEntriesForExport before returning.
	exportHook func()
}

func newFakeStore(entries ...Entry) *fakeStore {
	s := &fakeStore{entries: make(map[int64]Entry)}
	for _, e := range entries {
		s.nextID++
		e.ID = s.nextID
		s.entries[e.ID] = e
	}
	return s
}

func (s *fakeStore) CreateEntry(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(e) {
		return Entry{}, ErrDuplicateEntry
	}
	s.nextID++
	e.ID = s.nextID
	s.entries[e.ID] = e
	return e, nil
}

func (s *fakeStore) UpdateEntry(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		return Entry{}, ErrEntryNotFound
	}
	if s.conflicts(e) {
		return Entry{}, ErrDuplicateEntry
	}
	s.entries[e.ID] = e
	return e, nil
}

func (s *fakeStore) conflicts(e Entry) bool {
	for id, other := range s.entries {
		if id != e.ID && other.PIZ == e.PIZ && other.ExaminationDate.Equal(e.ExaminationDate) {
			return true
		}
	}
	return false
}

func (s *fakeStore) GetEntry(_ context.Context, id int64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (s *fakeStore) filtered(filter EntryFilter) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if filter.PIZ != "" && !strings.Contains(strings.ToLower(e.PIZ), strings.ToLower(filter.PIZ)) {
			continue
		}
		if !filter.StartDate.IsZero() && e.ExaminationDate.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && e.ExaminationDate.After(filter.EndDate) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *fakeStore) ListEntries(_ context.Context, filter EntryFilter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filtered(filter)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExaminationDate.Equal(out[j].ExaminationDate) {
			return out[i].ExaminationDate.After(out[j].ExaminationDate)
		}
		return out[i].PIZ < out[j].PIZ
	})
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *fakeStore) CountEntries(_ context.Context, filter EntryFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filtered(filter))), nil
}

func (s *fakeStore) ListEntriesForExport(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	hook := s.exportHook
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExaminationDate.Equal(out[j].ExaminationDate) {
			return out[i].ExaminationDate.Before(out[j].ExaminationDate)
		}
		return out[i].PIZ < out[j].PIZ
	})
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *fakeStore) CreateInstruction(_ context.Context, in Instruction) (Instruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instructionErr != nil {
		return Instruction{}, s.instructionErr
	}
	in.ID = int64(len(s.instructions) + 1)
	s.instructions = append(s.instructions, in)
	return in, nil
}

func (s *fakeStore) GetInstruction(_ context.Context, id int64) (Instruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.instructions {
		if in.ID == id {
			return in, nil
		}
	}
	return Instruction{}, ErrInstructionNotFound
}

func (s *fakeStore) ListInstructions(context.Context) ([]Instruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Instruction, 0, len(s.instructions))
	for i := len(s.instructions) - 1; i >= 0; i-- {
		out = append(out, s.instructions[i])
	}
	return out, nil
}

func (s *fakeStore) AppendAuditEvent(_ context.Context, ev AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) ListAuditEvents(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if filter.Action != "" && ev.Action != filter.Action {
			continue
		}
		if filter.Actor != "" && ev.Actor != filter.Actor {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *fakeStore) CountAuditEvents(ctx context.Context, filter AuditFilter) (int64, error) {
	evs, err := s.ListAuditEvents(ctx, filter)
	return int64(len(evs)), err
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) Close() {}

func (s *fakeStore) auditEvents() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

// captureSink records audit calls without a store.
type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
	err    error
}

func (c *captureSink) Record(_ context.Context, action AuditAction, actor, details string) (*AuditEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	ev := AuditEvent{Action: action, Actor: actor, Details: details, CreatedAt: time.Now()}
	c.events = append(c.events, ev)
	return &ev, nil
}

func (c *captureSink) recorded() []AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AuditEvent(nil), c.events...)
}

var errDiskFull = errors.New("write: no space left on device")

func sampleEntry(piz string, exam time.Time, link bool, lsm, capDbm float64, by string) Entry {
	ts := time.Date(2024, 2, 3, 10, 30, 0, 123456000, time.UTC)
	return Entry{
		PIZ:                piz,
		ExaminationDate:    exam,
		LiverAmbulanceLink: link,
		FibroscanLSMKPa:    lsm,
		FibroscanCAPDbm:    capDbm,
		CreatedAt:          ts,
		UpdatedAt:          ts.Add(time.Hour),
		CreatedBy:          by,
		UpdatedBy:          by,
	}
}
