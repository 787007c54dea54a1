package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const entryColumns = `id, piz, examination_date, liver_ambulance_link, fibroscan_lsm_kpa,
	fibroscan_cap_dbm, created_at, updated_at, created_by, updated_by`

func scanEntry(row interface{ Scan(dest ...any) error }) (StudyEntry, error) {
	var i StudyEntry
	err := row.Scan(
		&i.ID,
		&i.Piz,
		&i.ExaminationDate,
		&i.LiverAmbulanceLink,
		&i.FibroscanLsmKpa,
		&i.FibroscanCapDbm,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CreatedBy,
		&i.UpdatedBy,
	)
	return i, err
}

const insertEntry = `-- name: InsertEntry :one
INSERT INTO study_entries (
	piz, examination_date, liver_ambulance_link, fibroscan_lsm_kpa,
	fibroscan_cap_dbm, created_at, updated_at, created_by, updated_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + entryColumns

type InsertEntryParams struct {
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

func (q *Queries) InsertEntry(ctx context.Context, arg InsertEntryParams) (StudyEntry, error) {
	row := q.db.QueryRow(ctx, insertEntry,
		arg.Piz,
		arg.ExaminationDate,
		arg.LiverAmbulanceLink,
		arg.FibroscanLsmKpa,
		arg.FibroscanCapDbm,
		arg.CreatedAt,
		arg.UpdatedAt,
		arg.CreatedBy,
		arg.UpdatedBy,
	)
	return scanEntry(row)
}

const updateEntry = `-- name: UpdateEntry :one
UPDATE study_entries SET
	piz = $2,
	examination_date = $3,
	liver_ambulance_link = $4,
	fibroscan_lsm_kpa = $5,
	fibroscan_cap_dbm = $6,
	updated_at = $7,
	updated_by = $8
WHERE id = $1
RETURNING ` + entryColumns

type UpdateEntryParams struct {
	ID                 int64
	Piz                string
	ExaminationDate    pgtype.Date
	LiverAmbulanceLink bool
	FibroscanLsmKpa    pgtype.Numeric
	FibroscanCapDbm    pgtype.Numeric
	UpdatedAt          pgtype.Timestamptz
	UpdatedBy          pgtype.Text
}

func (q *Queries) UpdateEntry(ctx context.Context, arg UpdateEntryParams) (StudyEntry, error) {
	row := q.db.QueryRow(ctx, updateEntry,
		arg.ID,
		arg.Piz,
		arg.ExaminationDate,
		arg.LiverAmbulanceLink,
		arg.FibroscanLsmKpa,
		arg.FibroscanCapDbm,
		arg.UpdatedAt,
		arg.UpdatedBy,
	)
	return scanEntry(row)
}

const getEntry = `-- name: GetEntry :one
SELECT ` + entryColumns + ` FROM study_entries WHERE id = $1`

func (q *Queries) GetEntry(ctx context.Context, id int64) (StudyEntry, error) {
	return scanEntry(q.db.QueryRow(ctx, getEntry, id))
}

const listEntriesForExport = `-- name: ListEntriesForExport :many
SELECT ` + entryColumns + ` FROM study_entries ORDER BY examination_date ASC, piz ASC`

func (q *Queries) ListEntriesForExport(ctx context.Context) ([]StudyEntry, error) {
	rows, err := q.db.Query(ctx, listEntriesForExport)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StudyEntry
	for rows.Next() {
		i, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
