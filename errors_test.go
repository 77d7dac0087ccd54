package sqlitekit

import (
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
)

// TestErrorDisplay pins the display format.
func TestErrorDisplay(t *testing.T) {
	err := &Error{Code: 19, Message: "UNIQUE constraint failed: t.a"}
	want := "UNIQUE constraint failed: t.a (error code: 19)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// TestWrapError verifies native error conversion.
func TestWrapError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		if wrapError(nil) != nil {
			t.Error("wrapError(nil) != nil")
		}
	})

	t.Run("sentinels pass through", func(t *testing.T) {
		if err := wrapError(ErrClosed); !errors.Is(err, ErrClosed) {
			t.Errorf("wrapError(ErrClosed) = %v", err)
		}
		if err := wrapError(ErrTxDone); !errors.Is(err, ErrTxDone) {
			t.Errorf("wrapError(ErrTxDone) = %v", err)
		}
	})

	t.Run("driver error keeps result code", func(t *testing.T) {
		native := sqlite3.Error{Code: sqlite3.ErrConstraint}
		err := wrapError(native)

		var dbErr *Error
		if !errors.As(err, &dbErr) {
			t.Fatalf("wrapError() = %T, want *Error", err)
		}
		if dbErr.Code != int(sqlite3.ErrConstraint) {
			t.Errorf("Code = %d, want %d", dbErr.Code, int(sqlite3.ErrConstraint))
		}
		// Unwrap must expose the driver error.
		var se sqlite3.Error
		if !errors.As(err, &se) {
			t.Error("driver error not reachable through Unwrap")
		}
	})

	t.Run("already wrapped passes through", func(t *testing.T) {
		orig := &Error{Code: 1, Message: "x"}
		if wrapError(orig) != orig {
			t.Error("wrapError re-wrapped an *Error")
		}
	})

	t.Run("non-driver error gets code zero", func(t *testing.T) {
		err := wrapError(errors.New("disk fell off"))
		var dbErr *Error
		if !errors.As(err, &dbErr) {
			t.Fatalf("wrapError() = %T, want *Error", err)
		}
		if dbErr.Code != 0 {
			t.Errorf("Code = %d, want 0", dbErr.Code)
		}
	})
}
