package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type StudyEntry struct {
	ID                 int64
	Piz                string
	ExaminationDate    pgtype.Date
	LiverAmbulanceLink bool
	FibroscanLsmKpa    pgtype.Numeric
	FibroscanCapDbm    pgtype.Numeric
	CreatedAt          pgtype.Timestamptz
	UpdatedAt          pgtype.Timestamptz
	CreatedBy          pgtype.Text
	UpdatedBy          pgtype.Text
}

type AuditEvent struct {
	ID        pgtype.UUID
	Action    string
	Actor     string
	Details   pgtype.Text
	CreatedAt pgtype.Timestamptz
}

type StudyInstruction struct {
	ID         int64
	Title      string
	FileName   string
	StoredName string
	SizeBytes  int64
	UploadedAt pgtype.Timestamptz
	UploadedBy pgtype.Text
}
