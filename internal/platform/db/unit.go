package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tillpoint/tillpoint/internal/shared"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Unit is a request scoped unit of work pinned to at most one connection.
// A Unit must not be shared between goroutines.
type Unit struct {
	m          *Manager
	conn       *sql.Conn
	tx         *sql.Tx
	savepoints int
}

// Backend returns the backend the unit talks to.
func (u *Unit) Backend() Backend { return u.m.dialect.Backend() }

// Dialect returns the backend dialect.
func (u *Unit) Dialect() Dialect { return u.m.dialect }

// Acquired reports whether a connection is currently held.
func (u *Unit) Acquired() bool { return u.conn != nil }

// InTransaction reports whether a transaction is open.
func (u *Unit) InTransaction() bool { return u.tx != nil }

// Acquire pins a pooled connection to the unit on first use.
func (u *Unit) Acquire(ctx context.Context) (*sql.Conn, error) {
	if u.conn != nil {
		return u.conn, nil
	}
	conn, err := u.m.db.Conn(ctx)
	if err != nil {
		return nil, Classify("platform/db: acquire", err)
	}
	u.conn = conn
	return conn, nil
}

// Release rolls back any open transaction and returns the connection to the pool.
// It is safe to call more than once.
func (u *Unit) Release() error {
	if u == nil || u.conn == nil {
		return nil
	}
	if u.tx != nil {
		if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			u.m.logger.Warn("rollback on release failed", slog.Any("error", err))
		}
		u.tx = nil
	}
	err := u.conn.Close()
	u.conn = nil
	u.savepoints = 0
	return err
}

func (u *Unit) target(ctx context.Context) (querier, context.Context, error) {
	if u.tx != nil {
		// open transactions run to completion regardless of caller cancellation
		return u.tx, context.WithoutCancel(ctx), nil
	}
	conn, err := u.Acquire(ctx)
	if err != nil {
		return nil, ctx, err
	}
	return conn, ctx, nil
}

func (u *Unit) fail(op, query string, err error) error {
	classified := Classify("platform/db: "+op, err)
	if errors.Is(classified, shared.ErrBackend) {
		u.m.logger.Error("statement failed",
			slog.String("op", op),
			slog.String("backend", u.Backend().String()),
			slog.String("sql", query),
			slog.Any("error", err))
	}
	return classified
}

// Exec runs a canonical write statement.
func (u *Unit) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	tr := u.m.dialect.Translate(query)
	if tr.Skip {
		return Result{}, nil
	}
	q, ctx, err := u.target(ctx)
	if err != nil {
		return Result{}, err
	}
	if tr.Returning {
		var id int64
		err := q.QueryRowContext(ctx, tr.SQL, args...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, nil
		}
		if err != nil {
			return Result{}, u.fail("exec", tr.SQL, err)
		}
		return Result{RowsAffected: 1, LastInsertID: id, hasInsertID: true}, nil
	}
	res, err := q.ExecContext(ctx, tr.SQL, args...)
	if err != nil {
		return Result{}, u.fail("exec", tr.SQL, err)
	}
	out := Result{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if tr.GeneratesKey() && out.RowsAffected > 0 {
		if id, err := res.LastInsertId(); err == nil {
			out.LastInsertID = id
			out.hasInsertID = true
		}
	}
	return out, nil
}

// Query runs a canonical read statement and materialises every row.
func (u *Unit) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	tr := u.m.dialect.Translate(query)
	if tr.Skip {
		return nil, nil
	}
	q, ctx, err := u.target(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, tr.SQL, args...)
	if err != nil {
		return nil, u.fail("query", tr.SQL, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, u.fail("scan", tr.SQL, err)
	}
	return out, nil
}

// QueryRow returns the first row of the result or ErrNoRows.
func (u *Unit) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := u.Query(ctx, query, args...)
	if err != nil {
		return Row{}, err
	}
	if len(rows) == 0 {
		return Row{}, ErrNoRows
	}
	return rows[0], nil
}

// Count runs a query yielding a single integer.
func (u *Unit) Count(ctx context.Context, query string, args ...any) (int64, error) {
	row, err := u.QueryRow(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return row.IntAt(0), nil
}

// Begin opens a transaction on the unit's connection.
func (u *Unit) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("platform/db: transaction already open")
	}
	conn, err := u.Acquire(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(context.WithoutCancel(ctx), u.m.dialect.TxOptions())
	if err != nil {
		return u.fail("begin", "BEGIN", err)
	}
	u.tx = tx
	u.savepoints = 0
	return nil
}

// Commit commits the open transaction.
func (u *Unit) Commit() error {
	if u.tx == nil {
		return ErrNoTx
	}
	err := u.tx.Commit()
	u.tx = nil
	if err != nil {
		return u.fail("commit", "COMMIT", err)
	}
	return nil
}

// Rollback aborts the open transaction.
func (u *Unit) Rollback() error {
	if u.tx == nil {
		return ErrNoTx
	}
	err := u.tx.Rollback()
	u.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return u.fail("rollback", "ROLLBACK", err)
	}
	return nil
}

// InTx runs fn in a transaction, committing when it returns nil and rolling
// back on error or panic. Inside an open transaction it becomes a savepoint.
func (u *Unit) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if u.tx != nil {
		return u.Savepoint(ctx, "tx", fn)
	}
	if err := u.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = u.Rollback()
			panic(p)
		}
	}()
	if err := fn(ctx); err != nil {
		if rbErr := u.Rollback(); rbErr != nil {
			u.m.logger.Warn("rollback failed", slog.Any("error", rbErr))
		}
		return err
	}
	return u.Commit()
}

// Savepoint runs fn behind a named rollback point of the open transaction.
// An error from fn undoes only the work done by fn.
func (u *Unit) Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if u.tx == nil {
		return ErrNoTx
	}
	u.savepoints++
	sp := fmt.Sprintf("sp_%s_%d", savepointLabel(name), u.savepoints)
	if _, err := u.Exec(ctx, "SAVEPOINT "+sp); err != nil {
		return err
	}
	undo := func() {
		if _, err := u.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
			u.m.logger.Warn("rollback to savepoint failed", slog.String("savepoint", sp), slog.Any("error", err))
			return
		}
		_, _ = u.Exec(ctx, "RELEASE SAVEPOINT "+sp)
	}
	defer func() {
		if p := recover(); p != nil {
			undo()
			panic(p)
		}
	}()
	if err := fn(ctx); err != nil {
		undo()
		return err
	}
	_, err := u.Exec(ctx, "RELEASE SAVEPOINT "+sp)
	return err
}

func savepointLabel(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "sp"
	}
	return b.String()
}
