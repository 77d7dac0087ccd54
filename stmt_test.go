package sqlitekit

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// TestPrepare verifies statement compilation and its failure mode.
func TestPrepare(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	t.Run("malformed SQL fails with engine error", func(t *testing.T) {
		_, err := db.Prepare(ctx, "SELEC wrong FROM nowhere")
		if err == nil {
			t.Fatal("Prepare() with malformed SQL succeeded, want error")
		}
		var dbErr *Error
		if !errors.As(err, &dbErr) {
			t.Fatalf("Prepare() error = %T, want *Error", err)
		}
	})

	t.Run("unknown table fails", func(t *testing.T) {
		if _, err := db.Prepare(ctx, "SELECT a FROM missing_table"); err == nil {
			t.Error("Prepare() against missing table succeeded, want error")
		}
	})
}

// TestBindAndExecute inserts one bound integer and one bound NULL,
// then reads both back with typed accessors.
func TestBindAndExecute(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	mustExec(t, db, "CREATE TABLE t (a INTEGER, b INTEGER)")

	stmt, err := db.Prepare(ctx, "insert into t(a,b) values(:a,:b)")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer stmt.Close() //nolint:errcheck // Test cleanup

	stmt.Bind("a", Int(5))
	stmt.Bind("b", Null())
	if err := stmt.Execute(ctx); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	sel, err := db.Prepare(ctx, "select a,b from t")
	if err != nil {
		t.Fatalf("Prepare(select) error = %v", err)
	}
	defer sel.Close() //nolint:errcheck // Test cleanup

	rows, err := sel.Query(ctx)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatalf("no row returned: %v", rows.Err())
	}
	if a, ok := rows.Int(0); !ok || a != 5 {
		t.Errorf("a = (%d, %v), want (5, true)", a, ok)
	}
	if b, ok := rows.Int(1); ok {
		t.Errorf("b = (%d, %v), want absent", b, ok)
	}
}

// TestBindUnknownName verifies that binding a parameter the SQL does
// not declare is a contract violation, not a recoverable error.
func TestBindUnknownName(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	mustExec(t, db, "CREATE TABLE bind_test (a INTEGER)")

	stmt, err := db.Prepare(ctx, "INSERT INTO bind_test (a) VALUES (:a)")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer stmt.Close() //nolint:errcheck // Test cleanup

	defer func() {
		if recover() == nil {
			t.Error("Bind() with unknown name did not panic")
		}
	}()
	stmt.Bind("nope", Int(1))
}

// TestExecuteRejectsRows verifies the execute call shape requires the
// statement to complete without producing a row.
func TestExecuteRejectsRows(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	stmt, err := db.Prepare(ctx, "SELECT 1")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer stmt.Close() //nolint:errcheck // Test cleanup

	if err := stmt.Execute(ctx); err == nil {
		t.Error("Execute() on a row-producing statement succeeded, want error")
	}
}

// TestStatementReuse verifies automatic reset: rebinding and
// re-executing the same compiled statement.
func TestStatementReuse(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	mustExec(t, db, "CREATE TABLE reuse_test (n INTEGER)")

	stmt, err := db.Prepare(ctx, "INSERT INTO reuse_test (n) VALUES (:n)")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer stmt.Close() //nolint:errcheck // Test cleanup

	for i := int32(1); i <= 5; i++ {
		stmt.Bind("n", Int(i))
		if err := stmt.Execute(ctx); err != nil {
			t.Fatalf("Execute() #%d error = %v", i, err)
		}
	}

	if n := countRows(t, db, "reuse_test"); n != 5 {
		t.Errorf("row count = %d, want 5", n)
	}
}

// TestUnboundParameterIsNull verifies that parameters never bound
// execute as SQL NULL.
func TestUnboundParameterIsNull(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	mustExec(t, db, "CREATE TABLE unbound_test (a INTEGER, b TEXT)")

	stmt, err := db.Prepare(ctx, "INSERT INTO unbound_test (a, b) VALUES (:a, :b)")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer stmt.Close() //nolint:errcheck // Test cleanup

	stmt.Bind("a", Int(7))
	if err := stmt.Execute(ctx); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	sel, err := db.Prepare(ctx, "SELECT b FROM unbound_test")
	if err != nil {
		t.Fatalf("Prepare(select) error = %v", err)
	}
	defer sel.Close() //nolint:errcheck // Test cleanup

	rows, err := sel.Query(ctx)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatalf("no row returned: %v", rows.Err())
	}
	if b, ok := rows.Text(0); ok {
		t.Errorf("b = (%q, %v), want absent", b, ok)
	}
}

// TestStmtClose verifies finalization semantics.
func TestStmtClose(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	stmt, err := db.Prepare(ctx, "SELECT 1")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if err := stmt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := stmt.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil (no-op)", err)
	}

	if err := stmt.Execute(ctx); !errors.Is(err, ErrStmtClosed) {
		t.Errorf("Execute() after Close error = %v, want ErrStmtClosed", err)
	}
	if _, err := stmt.Query(ctx); !errors.Is(err, ErrStmtClosed) {
		t.Errorf("Query() after Close error = %v, want ErrStmtClosed", err)
	}
}

// TestScanParams exercises the prepare-time parameter scanner.
func TestScanParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "colon names",
			query: "INSERT INTO t (a, b) VALUES (:a, :b)",
			want:  []string{"a", "b"},
		},
		{
			name:  "mixed prefixes",
			query: "SELECT * FROM t WHERE a = :a AND b = @b AND c = $c",
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "repeated name counted once",
			query: "SELECT * FROM t WHERE a = :x OR b = :x",
			want:  []string{"x"},
		},
		{
			name:  "ignores string literals",
			query: "SELECT ':not_a_param' FROM t WHERE a = :real",
			want:  []string{"real"},
		},
		{
			name:  "ignores quoted identifiers",
			query: `SELECT ":col" FROM t WHERE a = :p`,
			want:  []string{"p"},
		},
		{
			name:  "ignores line comments",
			query: "SELECT a FROM t -- :commented\nWHERE a = :live",
			want:  []string{"live"},
		},
		{
			name:  "ignores block comments",
			query: "SELECT a /* :hidden */ FROM t WHERE a = :live",
			want:  []string{"live"},
		},
		{
			name:  "doubled quote escape",
			query: "SELECT 'it''s :not' FROM t WHERE a = :yes",
			want:  []string{"yes"},
		},
		{
			name:  "no parameters",
			query: "SELECT 1",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanParams(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("scanParams(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
