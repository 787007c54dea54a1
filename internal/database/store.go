package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/studydata/internal/core"
)

// Store implements core.Store on a PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
	q    *Queries
}

var _ core.Store = (*Store)(nil)

// NewStore wraps an open pool. The caller runs Migrate first.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: New(pool)}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	row, err := s.q.InsertEntry(ctx, InsertEntryParams{
		Piz:                e.PIZ,
		ExaminationDate:    ToPgDate(e.ExaminationDate),
		LiverAmbulanceLink: e.LiverAmbulanceLink,
		FibroscanLsmKpa:    ToPgNumeric(e.FibroscanLSMKPa),
		FibroscanCapDbm:    ToPgNumeric(e.FibroscanCAPDbm),
		CreatedAt:          ToPgTimestamptz(e.CreatedAt),
		UpdatedAt:          ToPgTimestamptz(e.UpdatedAt),
		CreatedBy:          ToPgText(e.CreatedBy),
		UpdatedBy:          ToPgText(e.UpdatedBy),
	})
	if err != nil {
		return core.Entry{}, mapError(err)
	}
	return entryFromRow(row)
}

func (s *Store) UpdateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	row, err := s.q.UpdateEntry(ctx, UpdateEntryParams{
		ID:                 e.ID,
		Piz:                e.PIZ,
		ExaminationDate:    ToPgDate(e.ExaminationDate),
		LiverAmbulanceLink: e.LiverAmbulanceLink,
		FibroscanLsmKpa:    ToPgNumeric(e.FibroscanLSMKPa),
		FibroscanCapDbm:    ToPgNumeric(e.FibroscanCAPDbm),
		UpdatedAt:          ToPgTimestamptz(e.UpdatedAt),
		UpdatedBy:          ToPgText(e.UpdatedBy),
	})
	if err != nil {
		return core.Entry{}, mapError(err)
	}
	return entryFromRow(row)
}

func (s *Store) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row, err := s.q.GetEntry(ctx, id)
	if err != nil {
		return core.Entry{}, mapError(err)
	}
	return entryFromRow(row)
}

func entryWhere(filter core.EntryFilter) *WhereBuilder {
	wb := NewWhereBuilder()
	wb.AddContains("piz", filter.PIZ)
	wb.AddFrom("examination_date", filter.StartDate, ToPgDate(filter.StartDate))
	wb.AddUntil("examination_date", filter.EndDate, ToPgDate(filter.EndDate))
	return wb
}

func (s *Store) ListEntries(ctx context.Context, filter core.EntryFilter) ([]core.Entry, error) {
	wb := entryWhere(filter)
	whereClause, args := wb.Build()
	page, args := wb.LimitOffset(args, filter.Limit, filter.Offset)

	query := "SELECT " + entryColumns + " FROM study_entries" + whereClause +
		" ORDER BY examination_date DESC, piz ASC" + page

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]core.Entry, 0)
	for rows.Next() {
		r, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e, err := entryFromRow(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CountEntries(ctx context.Context, filter core.EntryFilter) (int64, error) {
	whereClause, args := entryWhere(filter).Build()
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM study_entries"+whereClause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (s *Store) ListEntriesForExport(ctx context.Context) ([]core.Entry, error) {
	rows, err := s.q.ListEntriesForExport(ctx)
	if err != nil {
		return nil, fmt.Errorf("query export entries: %w", err)
	}
	entries := make([]core.Entry, len(rows))
	for i, r := range rows {
		e, err := entryFromRow(r)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

func (s *Store) AppendAuditEvent(ctx context.Context, ev core.AuditEvent) error {
	return s.q.InsertAuditEvent(ctx, InsertAuditEventParams{
		ID:        ToPgUUID(ev.ID),
		Action:    string(ev.Action),
		Actor:     ev.Actor,
		Details:   ToPgText(ev.Details),
		CreatedAt: ToPgTimestamptz(ev.CreatedAt),
	})
}

func (s *Store) CreateInstruction(ctx context.Context, in core.Instruction) (core.Instruction, error) {
	row, err := s.q.InsertInstruction(ctx, InsertInstructionParams{
		Title:      in.Title,
		FileName:   in.FileName,
		StoredName: in.StoredName,
		SizeBytes:  in.SizeBytes,
		UploadedAt: ToPgTimestamptz(in.UploadedAt),
		UploadedBy: ToPgText(in.UploadedBy),
	})
	if err != nil {
		return core.Instruction{}, fmt.Errorf("insert instruction: %w", err)
	}
	return instructionFromRow(row), nil
}

func (s *Store) GetInstruction(ctx context.Context, id int64) (core.Instruction, error) {
	row, err := s.q.GetInstruction(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Instruction{}, core.ErrInstructionNotFound
	}
	if err != nil {
		return core.Instruction{}, fmt.Errorf("get instruction: %w", err)
	}
	return instructionFromRow(row), nil
}

func (s *Store) ListInstructions(ctx context.Context) ([]core.Instruction, error) {
	rows, err := s.q.ListInstructions(ctx)
	if err != nil {
		return nil, fmt.Errorf("query instructions: %w", err)
	}
	list := make([]core.Instruction, len(rows))
	for i, r := range rows {
		list[i] = instructionFromRow(r)
	}
	return list, nil
}

func auditWhere(filter core.AuditFilter) *WhereBuilder {
	wb := NewWhereBuilder()
	wb.Add("action", string(filter.Action))
	wb.Add("actor", filter.Actor)
	wb.AddFrom("created_at", filter.StartTime, ToPgTimestamptz(filter.StartTime))
	wb.AddUntil("created_at", filter.EndTime, ToPgTimestamptz(filter.EndTime))
	return wb
}

func (s *Store) ListAuditEvents(ctx context.Context, filter core.AuditFilter) ([]core.AuditEvent, error) {
	wb := auditWhere(filter)
	whereClause, args := wb.Build()
	page, args := wb.LimitOffset(args, filter.Limit, filter.Offset)

	query := "SELECT id, action, actor, details, created_at FROM audit_events" + whereClause +
		" ORDER BY created_at DESC, id" + page

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]core.AuditEvent, 0)
	for rows.Next() {
		r, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, auditFromRow(r))
	}
	return events, rows.Err()
}

func (s *Store) CountAuditEvents(ctx context.Context, filter core.AuditFilter) (int64, error) {
	whereClause, args := auditWhere(filter).Build()
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_events"+whereClause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// PoolConfig holds the pool settings applied by Open.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects a pool, verifies it and applies the schema.
func Open(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
