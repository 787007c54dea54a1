package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const instructionColumns = `id, title, file_name, stored_name, size_bytes, uploaded_at, uploaded_by`

func scanInstruction(row interface{ Scan(dest ...any) error }) (StudyInstruction, error) {
	var i StudyInstruction
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.FileName,
		&i.StoredName,
		&i.SizeBytes,
		&i.UploadedAt,
		&i.UploadedBy,
	)
	return i, err
}

const insertInstruction = `-- name: InsertInstruction :one
INSERT INTO study_instructions (title, file_name, stored_name, size_bytes, uploaded_at, uploaded_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + instructionColumns

type InsertInstructionParams struct {
	Title      string
	FileName   string
	StoredName string
	SizeBytes  int64
	UploadedAt pgtype.Timestamptz
	UploadedBy pgtype.Text
}

func (q *Queries) InsertInstruction(ctx context.Context, arg InsertInstructionParams) (StudyInstruction, error) {
	row := q.db.QueryRow(ctx, insertInstruction,
		arg.Title,
		arg.FileName,
		arg.StoredName,
		arg.SizeBytes,
		arg.UploadedAt,
		arg.UploadedBy,
	)
	return scanInstruction(row)
}

const getInstruction = `-- name: GetInstruction :one
SELECT ` + instructionColumns + ` FROM study_instructions WHERE id = $1`

func (q *Queries) GetInstruction(ctx context.Context, id int64) (StudyInstruction, error) {
	return scanInstruction(q.db.QueryRow(ctx, getInstruction, id))
}

const listInstructions = `-- name: ListInstructions :many
SELECT ` + instructionColumns + ` FROM study_instructions
ORDER BY uploaded_at DESC, id DESC`

func (q *Queries) ListInstructions(ctx context.Context) ([]StudyInstruction, error) {
	rows, err := q.db.Query(ctx, listInstructions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StudyInstruction
	for rows.Next() {
		i, err := scanInstruction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
