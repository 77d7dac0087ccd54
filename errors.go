package sqlitekit

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Sentinel errors for lifecycle misuse. These are ordinary recoverable
// errors, not programming-contract violations: a caller racing a
// shutdown can legitimately observe them.
var (
	// ErrClosed is returned when a Conn is used after Close.
	ErrClosed = errors.New("sqlitekit: connection is closed")

	// ErrTxDone is returned when a Tx frame is used after it has been
	// committed, rolled back, or cancelled.
	ErrTxDone = errors.New("sqlitekit: transaction frame is finished")

	// ErrStmtClosed is returned when a Stmt is used after Close.
	ErrStmtClosed = errors.New("sqlitekit: statement is closed")
)

// Error is the single engine-error kind. It carries SQLite's numeric
// result code and message, captured at the moment a native call fails,
// and is immutable afterwards.
type Error struct {
	// Code is the SQLite result code (e.g. 1 = SQLITE_ERROR,
	// 19 = SQLITE_CONSTRAINT). Zero means the failure did not come
	// from the engine itself.
	Code int

	// Message is the human-readable engine message.
	Message string

	cause error
}

// Error renders the error as "<message> (error code: <code>)".
func (e *Error) Error() string {
	return fmt.Sprintf("%s (error code: %d)", e.Message, e.Code)
}

// Unwrap exposes the underlying driver error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// wrapError converts a native failure into *Error. Driver errors keep
// their SQLite result code; anything else (I/O during open, context
// cancellation surfaced by database/sql) gets code 0. Sentinels and
// already-wrapped errors pass through untouched.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrTxDone) || errors.Is(err, ErrStmtClosed) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return &Error{
			Code:    int(se.Code),
			Message: se.Error(),
			cause:   err,
		}
	}
	return &Error{Message: err.Error(), cause: err}
}
