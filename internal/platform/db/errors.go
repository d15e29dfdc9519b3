package db

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// ErrNoRows is returned by QueryRow when the query matched nothing.
var ErrNoRows = &shared.Error{Kind: shared.ErrNotFound, Message: "no rows in result set"}

// ErrNoTx is returned by Commit, Rollback and Savepoint outside a transaction.
var ErrNoTx = errors.New("platform/db: no transaction in progress")

// postgres SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// Classify maps a driver error onto the shared error kinds.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	var typed *shared.Error
	if errors.As(err, &typed) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation:
			return shared.Wrap(shared.ErrConflict, op, err)
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return shared.Wrap(shared.ErrBusy, op, err)
		}
		return shared.Wrap(shared.ErrBackend, op, err)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return shared.Wrap(shared.ErrBusy, op, err)
		case sqlite3.ErrConstraint:
			switch liteErr.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintForeignKey:
				return shared.Wrap(shared.ErrConflict, op, err)
			}
		}
		return shared.Wrap(shared.ErrBackend, op, err)
	}

	if errors.Is(err, ErrNoTx) {
		return err
	}
	return shared.Wrap(shared.ErrBackend, op, err)
}

// IsConflict reports whether err is a uniqueness or referential violation.
func IsConflict(err error) bool {
	return errors.Is(err, shared.ErrConflict)
}
