package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertAuditEvent = `-- name: InsertAuditEvent :exec
INSERT INTO audit_events (id, action, actor, details, created_at)
VALUES ($1, $2, $3, $4, $5)`

type InsertAuditEventParams struct {
	ID        pgtype.UUID
	Action    string
	Actor     string
	Details   pgtype.Text
	CreatedAt pgtype.Timestamptz
}

func (q *Queries) InsertAuditEvent(ctx context.Context, arg InsertAuditEventParams) error {
	_, err := q.db.Exec(ctx, insertAuditEvent,
		arg.ID,
		arg.Action,
		arg.Actor,
		arg.Details,
		arg.CreatedAt,
	)
	return err
}

func scanAuditEvent(row interface{ Scan(dest ...any) error }) (AuditEvent, error) {
	var i AuditEvent
	err := row.Scan(
		&i.ID,
		&i.Action,
		&i.Actor,
		&i.Details,
		&i.CreatedAt,
	)
	return i, err
}
