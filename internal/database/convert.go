package database

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/studydata/internal/core"
)

func ToPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func ToPgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func ToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// ToPgNumeric converts a measurement to a numeric(6,2) value.
// The value is rounded to two decimals by formatting, like the column does.
func ToPgNumeric(v float64) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(strconv.FormatFloat(v, 'f', 2, 64)); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ToPgUUID parses id into a pgtype.UUID; an invalid id yields an invalid UUID.
func ToPgUUID(id string) pgtype.UUID {
	u, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: [16]byte(u), Valid: true}
}

// fromPgNumeric converts a NOT NULL numeric column. NULL or an unconvertible
// value is an error so a broken row is never exported as 0.
func fromPgNumeric(n pgtype.Numeric) (float64, error) {
	if !n.Valid {
		return 0, errors.New("numeric is NULL")
	}
	f, err := n.Float64Value()
	if err != nil {
		return 0, fmt.Errorf("convert numeric: %w", err)
	}
	if !f.Valid {
		return 0, errors.New("numeric has no float64 value")
	}
	return f.Float64, nil
}

func fromPgUUID(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func fromPgTime(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func entryFromRow(r StudyEntry) (core.Entry, error) {
	var exam time.Time
	if r.ExaminationDate.Valid {
		y, m, d := r.ExaminationDate.Time.Date()
		exam = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	lsm, err := fromPgNumeric(r.FibroscanLsmKpa)
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry %d fibroscan_lsm_kpa: %w", r.ID, err)
	}
	capDbm, err := fromPgNumeric(r.FibroscanCapDbm)
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry %d fibroscan_cap_dbm: %w", r.ID, err)
	}
	return core.Entry{
		ID:                 r.ID,
		PIZ:                r.Piz,
		ExaminationDate:    exam,
		LiverAmbulanceLink: r.LiverAmbulanceLink,
		FibroscanLSMKPa:    lsm,
		FibroscanCAPDbm:    capDbm,
		CreatedAt:          fromPgTime(r.CreatedAt),
		UpdatedAt:          fromPgTime(r.UpdatedAt),
		CreatedBy:          r.CreatedBy.String,
		UpdatedBy:          r.UpdatedBy.String,
	}, nil
}

func auditFromRow(r AuditEvent) core.AuditEvent {
	return core.AuditEvent{
		ID:        fromPgUUID(r.ID),
		Action:    core.AuditAction(r.Action),
		Actor:     r.Actor,
		Details:   r.Details.String,
		CreatedAt: fromPgTime(r.CreatedAt),
	}
}

func instructionFromRow(r StudyInstruction) core.Instruction {
	return core.Instruction{
		ID:         r.ID,
		Title:      r.Title,
		FileName:   r.FileName,
		StoredName: r.StoredName,
		SizeBytes:  r.SizeBytes,
		UploadedAt: fromPgTime(r.UploadedAt),
		UploadedBy: r.UploadedBy.String,
	}
}
