package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist (or
	// belongs to another tenant).
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness or state-transition
	// precondition fails: duplicate ingest, a second open proposal for a
	// scope, or a CAS on a status that already moved on.
	ErrConflict = errors.New("conflict")

	// ErrVersionMismatch is returned by optimistic updates when the row
	// version changed under the writer. Callers reload and retry.
	ErrVersionMismatch = errors.New("version mismatch")
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
