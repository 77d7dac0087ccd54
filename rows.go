package sqlitekit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Rows is the cursor over one in-flight result set. It borrows its
// Stmt's compiled program and becomes invalid as soon as that
// statement is re-executed or closed.
//
// Typed accessors report SQL NULL as (zero, false), never as a zero
// sentinel with ok == true. Accessing an out-of-range index or unknown
// column name panics: that is a mismatch between SQL text and calling
// code, not a runtime condition.
type Rows struct {
	stmt *Stmt
	rows *sql.Rows
	args []any // bindings captured at Query time, reused by Rewind

	cols    []string
	byName  map[string]int
	current []any

	active bool
	closed bool
	err    error
}

// Next advances to the next row and reports whether one is available.
// Exhausting the result set closes the cursor automatically without
// finalizing the owning statement; check Err afterwards to distinguish
// completion from an engine failure mid-iteration.
func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	if !r.rows.Next() {
		r.err = wrapError(r.rows.Err())
		r.Close()
		return false
	}

	if r.cols == nil {
		cols, err := r.rows.Columns()
		if err != nil {
			r.err = wrapError(err)
			r.Close()
			return false
		}
		r.cols = cols
	}

	values := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = wrapError(err)
		r.Close()
		return false
	}

	r.current = values
	r.active = true
	return true
}

// Err returns the engine error that ended iteration, if any.
func (r *Rows) Err() error {
	return r.err
}

// Rewind re-runs the compiled statement with the bindings it was
// queried with, positioning the cursor before the first row again.
func (r *Rows) Rewind(ctx context.Context) error {
	if r.stmt.closed {
		return ErrStmtClosed
	}
	if r.rows != nil {
		r.rows.Close() //nolint:errcheck // Replaced by the fresh result set
	}

	rows, err := r.stmt.stmt.QueryContext(ctx, r.args...)
	if err != nil {
		return wrapError(err)
	}
	r.rows = rows
	r.current = nil
	r.active = false
	r.closed = false
	r.err = nil
	return nil
}

// Close releases the cursor's result set. Idempotent; the owning
// statement stays usable.
func (r *Rows) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.active = false
	r.current = nil
	if r.rows != nil {
		r.rows.Close() //nolint:errcheck // Iteration errors are already captured in r.err
	}
}

// Columns returns the result set's column names in order.
func (r *Rows) Columns() []string {
	r.columnIndex()
	return r.cols
}

// Int returns column i of the current row as a 64-bit integer.
// ok is false when the column is NULL.
func (r *Rows) Int(i int) (v int64, ok bool) {
	switch c := r.column(i).(type) {
	case nil:
		return 0, false
	case int64:
		return c, true
	case float64:
		return int64(c), true
	case bool:
		if c {
			return 1, true
		}
		return 0, true
	case string:
		v, _ := strconv.ParseInt(c, 10, 64) //nolint:errcheck // SQLite cast semantics: non-numeric text is 0
		return v, true
	case []byte:
		v, _ := strconv.ParseInt(string(c), 10, 64) //nolint:errcheck // SQLite cast semantics
		return v, true
	default:
		return 0, true
	}
}

// Float returns column i of the current row as a double.
func (r *Rows) Float(i int) (v float64, ok bool) {
	switch c := r.column(i).(type) {
	case nil:
		return 0, false
	case float64:
		return c, true
	case int64:
		return float64(c), true
	case string:
		v, _ := strconv.ParseFloat(c, 64) //nolint:errcheck // SQLite cast semantics
		return v, true
	case []byte:
		v, _ := strconv.ParseFloat(string(c), 64) //nolint:errcheck // SQLite cast semantics
		return v, true
	default:
		return 0, true
	}
}

// Bool returns column i of the current row as a boolean, decoding the
// stored 0/1 integer.
func (r *Rows) Bool(i int) (v bool, ok bool) {
	if c, isBool := r.column(i).(bool); isBool {
		return c, true
	}
	n, ok := r.Int(i)
	return n != 0, ok
}

// Text returns column i of the current row as text. A NULL column is
// ("", false); a zero-length text column is ("", true).
func (r *Rows) Text(i int) (v string, ok bool) {
	switch c := r.column(i).(type) {
	case nil:
		return "", false
	case string:
		return c, true
	case []byte:
		return string(c), true
	case int64:
		return strconv.FormatInt(c, 10), true
	case float64:
		return strconv.FormatFloat(c, 'g', -1, 64), true
	case bool:
		if c {
			return "1", true
		}
		return "0", true
	case time.Time:
		return c.UTC().Format(TimestampFormat), true
	default:
		return fmt.Sprint(c), true
	}
}

// Timestamp returns column i of the current row as a timestamp,
// parsing the stored RFC 3339 text. NULL, empty, or unparseable
// columns are (zero time, false).
func (r *Rows) Timestamp(i int) (v time.Time, ok bool) {
	switch c := r.column(i).(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return c.UTC(), true
	case string:
		return parseTimestamp(c)
	case []byte:
		return parseTimestamp(string(c))
	default:
		return time.Time{}, false
	}
}

// By-name accessors resolve through the lazily built column map.

// IntByName is Int addressed by column name.
func (r *Rows) IntByName(name string) (int64, bool) { return r.Int(r.index(name)) }

// FloatByName is Float addressed by column name.
func (r *Rows) FloatByName(name string) (float64, bool) { return r.Float(r.index(name)) }

// BoolByName is Bool addressed by column name.
func (r *Rows) BoolByName(name string) (bool, bool) { return r.Bool(r.index(name)) }

// TextByName is Text addressed by column name.
func (r *Rows) TextByName(name string) (string, bool) { return r.Text(r.index(name)) }

// TimestampByName is Timestamp addressed by column name.
func (r *Rows) TimestampByName(name string) (time.Time, bool) {
	return r.Timestamp(r.index(name))
}

// column fetches the raw value at index i of the current row.
func (r *Rows) column(i int) any {
	if !r.active {
		panic("sqlitekit: no current row; call Next first")
	}
	if i < 0 || i >= len(r.current) {
		panic(fmt.Sprintf("sqlitekit: column index %d out of range [0,%d)", i, len(r.current)))
	}
	return r.current[i]
}

// index resolves a column name through the lazily built name map.
func (r *Rows) index(name string) int {
	r.columnIndex()
	i, ok := r.byName[name]
	if !ok {
		panic(fmt.Sprintf("sqlitekit: no column named %q in result set %v", name, r.cols))
	}
	return i
}

// columnIndex builds the name -> index map once per cursor.
func (r *Rows) columnIndex() {
	if r.byName != nil {
		return
	}
	if r.cols == nil && r.rows != nil {
		cols, err := r.rows.Columns()
		if err == nil {
			r.cols = cols
		}
	}
	r.byName = make(map[string]int, len(r.cols))
	for i, c := range r.cols {
		r.byName[c] = i
	}
}

// parseTimestamp decodes stored timestamp text, tolerating empty
// values from NULL or zero-length columns.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(TimestampFormat, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
