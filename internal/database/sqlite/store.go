// Package sqlite implements core.Store on an embedded SQLite database for
// single-node deployments that run without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/JonMunkholm/studydata/internal/core"
	"github.com/JonMunkholm/studydata/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS study_entries (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	piz                  TEXT    NOT NULL CHECK (length(piz) <= 128),
	examination_date     TEXT    NOT NULL,
	liver_ambulance_link INTEGER NOT NULL DEFAULT 0,
	fibroscan_lsm_kpa    REAL    NOT NULL,
	fibroscan_cap_dbm    REAL    NOT NULL,
	created_at           INTEGER NOT NULL,
	updated_at           INTEGER NOT NULL,
	created_by           TEXT,
	updated_by           TEXT,
	UNIQUE (piz, examination_date)
);

CREATE INDEX IF NOT EXISTS idx_study_entries_export ON study_entries (examination_date, piz);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT    PRIMARY KEY,
	action     TEXT    NOT NULL,
	actor      TEXT    NOT NULL DEFAULT '',
	details    TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events (created_at);

CREATE TABLE IF NOT EXISTS study_instructions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT    NOT NULL CHECK (length(title) <= 255),
	file_name   TEXT    NOT NULL,
	stored_name TEXT    NOT NULL UNIQUE,
	size_bytes  INTEGER NOT NULL,
	uploaded_at INTEGER NOT NULL,
	uploaded_by TEXT
);
`

const entryColumns = `id, piz, examination_date, liver_ambulance_link, fibroscan_lsm_kpa,
	fibroscan_cap_dbm, created_at, updated_at, created_by, updated_by`

// Store implements core.Store using SQLite.
// Dates are stored as YYYY-MM-DD text and timestamps as Unix nanoseconds,
// so both sort correctly as stored.
type Store struct {
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite only supports a single writer; one connection also keeps an
	// in-memory database alive for the life of the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO study_entries (
		piz, examination_date, liver_ambulance_link, fibroscan_lsm_kpa,
		fibroscan_cap_dbm, created_at, updated_at, created_by, updated_by
	) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)`,
		e.PIZ,
		e.ExaminationDate.Format(core.DateLayout),
		e.LiverAmbulanceLink,
		round2(e.FibroscanLSMKPa),
		round2(e.FibroscanCAPDbm),
		e.CreatedAt.UnixNano(),
		e.UpdatedAt.UnixNano(),
		nullString(e.CreatedBy),
		nullString(e.UpdatedBy),
	)
	if err != nil {
		return core.Entry{}, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Entry{}, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetEntry(ctx, id)
}

func (s *Store) UpdateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE study_entries SET
		piz = ?2,
		examination_date = ?3,
		liver_ambulance_link = ?4,
		fibroscan_lsm_kpa = ?5,
		fibroscan_cap_dbm = ?6,
		updated_at = ?7,
		updated_by = ?8
	WHERE id = ?1`,
		e.ID,
		e.PIZ,
		e.ExaminationDate.Format(core.DateLayout),
		e.LiverAmbulanceLink,
		round2(e.FibroscanLSMKPa),
		round2(e.FibroscanCAPDbm),
		e.UpdatedAt.UnixNano(),
		nullString(e.UpdatedBy),
	)
	if err != nil {
		return core.Entry{}, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Entry{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.Entry{}, core.ErrEntryNotFound
	}
	return s.GetEntry(ctx, e.ID)
}

func (s *Store) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM study_entries WHERE id = ?1", id)
	e, err := scanEntry(row)
	if err != nil {
		return core.Entry{}, mapError(err)
	}
	return e, nil
}

func entryWhere(filter core.EntryFilter) *database.WhereBuilder {
	wb := database.NewWhereBuilderFor(database.SQLite)
	wb.AddContains("piz", filter.PIZ)
	wb.AddFrom("examination_date", filter.StartDate, filter.StartDate.Format(core.DateLayout))
	wb.AddUntil("examination_date", filter.EndDate, filter.EndDate.Format(core.DateLayout))
	return wb
}

func (s *Store) ListEntries(ctx context.Context, filter core.EntryFilter) ([]core.Entry, error) {
	wb := entryWhere(filter)
	whereClause, args := wb.Build()
	page, args := wb.LimitOffset(args, filter.Limit, filter.Offset)

	return s.queryEntries(ctx, "SELECT "+entryColumns+" FROM study_entries"+whereClause+
		" ORDER BY examination_date DESC, piz ASC"+page, args...)
}

func (s *Store) CountEntries(ctx context.Context, filter core.EntryFilter) (int64, error) {
	whereClause, args := entryWhere(filter).Build()
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM study_entries"+whereClause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (s *Store) ListEntriesForExport(ctx context.Context) ([]core.Entry, error) {
	return s.queryEntries(ctx, "SELECT "+entryColumns+" FROM study_entries ORDER BY examination_date ASC, piz ASC")
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]core.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]core.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AppendAuditEvent(ctx context.Context, ev core.AuditEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, action, actor, details, created_at) VALUES (?1, ?2, ?3, ?4, ?5)`,
		ev.ID, string(ev.Action), ev.Actor, nullString(ev.Details), ev.CreatedAt.UnixNano(),
	)
	return err
}

const instructionColumns = `id, title, file_name, stored_name, size_bytes, uploaded_at, uploaded_by`

func (s *Store) CreateInstruction(ctx context.Context, in core.Instruction) (core.Instruction, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO study_instructions (
		title, file_name, stored_name, size_bytes, uploaded_at, uploaded_by
	) VALUES (?1, ?2, ?3, ?4, ?5, ?6)`,
		in.Title, in.FileName, in.StoredName, in.SizeBytes, in.UploadedAt.UnixNano(), nullString(in.UploadedBy),
	)
	if err != nil {
		return core.Instruction{}, fmt.Errorf("insert instruction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Instruction{}, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetInstruction(ctx, id)
}

func (s *Store) GetInstruction(ctx context.Context, id int64) (core.Instruction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+instructionColumns+" FROM study_instructions WHERE id = ?1", id)
	in, err := scanInstruction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Instruction{}, core.ErrInstructionNotFound
	}
	if err != nil {
		return core.Instruction{}, fmt.Errorf("get instruction: %w", err)
	}
	return in, nil
}

func (s *Store) ListInstructions(ctx context.Context) ([]core.Instruction, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+instructionColumns+
		" FROM study_instructions ORDER BY uploaded_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("query instructions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]core.Instruction, 0)
	for rows.Next() {
		in, err := scanInstruction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instruction: %w", err)
		}
		list = append(list, in)
	}
	return list, rows.Err()
}

func scanInstruction(row interface{ Scan(dest ...any) error }) (core.Instruction, error) {
	var (
		in         core.Instruction
		uploaded   int64
		uploadedBy sql.NullString
	)
	if err := row.Scan(&in.ID, &in.Title, &in.FileName, &in.StoredName, &in.SizeBytes, &uploaded, &uploadedBy); err != nil {
		return core.Instruction{}, err
	}
	in.UploadedAt = time.Unix(0, uploaded).UTC()
	in.UploadedBy = uploadedBy.String
	return in, nil
}

func auditWhere(filter core.AuditFilter) *database.WhereBuilder {
	wb := database.NewWhereBuilderFor(database.SQLite)
	wb.Add("action", string(filter.Action))
	wb.Add("actor", filter.Actor)
	wb.AddFrom("created_at", filter.StartTime, filter.StartTime.UnixNano())
	wb.AddUntil("created_at", filter.EndTime, filter.EndTime.UnixNano())
	return wb
}

func (s *Store) ListAuditEvents(ctx context.Context, filter core.AuditFilter) ([]core.AuditEvent, error) {
	wb := auditWhere(filter)
	whereClause, args := wb.Build()
	page, args := wb.LimitOffset(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, "SELECT id, action, actor, details, created_at FROM audit_events"+
		whereClause+" ORDER BY created_at DESC, rowid DESC"+page, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]core.AuditEvent, 0)
	for rows.Next() {
		var (
			ev      core.AuditEvent
			action  string
			details sql.NullString
			created int64
		)
		if err := rows.Scan(&ev.ID, &action, &ev.Actor, &details, &created); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Action = core.AuditAction(action)
		ev.Details = details.String
		ev.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) CountAuditEvents(ctx context.Context, filter core.AuditFilter) (int64, error) {
	whereClause, args := auditWhere(filter).Build()
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+whereClause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

func scanEntry(row interface{ Scan(dest ...any) error }) (core.Entry, error) {
	var (
		e                    core.Entry
		exam                 string
		created, updated     int64
		createdBy, updatedBy sql.NullString
	)
	err := row.Scan(
		&e.ID,
		&e.PIZ,
		&exam,
		&e.LiverAmbulanceLink,
		&e.FibroscanLSMKPa,
		&e.FibroscanCAPDbm,
		&created,
		&updated,
		&createdBy,
		&updatedBy,
	)
	if err != nil {
		return core.Entry{}, err
	}
	e.ExaminationDate, err = core.ParseDate(exam)
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry %d: examination date %q: %w", e.ID, exam, err)
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	e.UpdatedAt = time.Unix(0, updated).UTC()
	e.CreatedBy = createdBy.String
	e.UpdatedBy = updatedBy.String
	return e, nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return core.ErrEntryNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return errors.Join(core.ErrDuplicateEntry, err)
	case strings.Contains(err.Error(), "CHECK constraint failed"):
		return errors.Join(core.ErrInvalidEntry, err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// round2 matches the two-decimal precision of the PostgreSQL columns.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
