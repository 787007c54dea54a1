package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/studydata/internal/core"
)

// PostgreSQL error codes the store translates.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgNumericOverflow = "22003"
)

// mapError translates driver errors into core sentinels, keeping the
// original error in the chain for logging.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrEntryNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Join(core.ErrDuplicateEntry, err)
		case pgCheckViolation, pgNumericOverflow:
			return errors.Join(core.ErrInvalidEntry, err)
		}
	}
	return err
}
