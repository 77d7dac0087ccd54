package sqlitekit

import (
	"context"
	"database/sql"
	"fmt"
)

// stmtOwner abstracts where a statement's writes run: directly on the
// Conn (acquiring the write gate per Execute) or inside a transaction
// frame (gate already held by the frame's caller).
type stmtOwner interface {
	withWriteAccess(work func() error) error
}

type connOwner struct{ c *Conn }

func (o connOwner) withWriteAccess(work func() error) error {
	return o.c.gate.withExclusiveWriteAccess(work)
}

type txOwner struct{ tx *Tx }

func (o txOwner) withWriteAccess(work func() error) error {
	if o.tx.done {
		return ErrTxDone
	}
	return work()
}

// Stmt is one compiled SQL program on the connection, with named
// parameters bound incrementally through Bind. Parameter names are
// extracted from the SQL at prepare time; binding a name the SQL does
// not declare is a contract violation between SQL text and calling
// code and panics rather than returning an error.
//
// A statement resets automatically after Execute, so it can be rebound
// and run again. Close releases the compiled program; it is safe to
// call more than once.
type Stmt struct {
	conn  *Conn
	owner stmtOwner
	query string

	stmt   *sql.Stmt
	params map[string]struct{}
	order  []string
	bound  map[string]Value

	rows   *Rows // active cursor, invalidated by Execute/Close
	closed bool
}

// newStmt compiles query on the pinned handle. Malformed SQL or
// unknown object names surface as *Error with the engine's code.
func newStmt(ctx context.Context, c *Conn, owner stmtOwner, query string) (*Stmt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	compiled, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, wrapError(err)
	}

	names := scanParams(query)
	params := make(map[string]struct{}, len(names))
	for _, n := range names {
		params[n] = struct{}{}
	}

	return &Stmt{
		conn:   c,
		owner:  owner,
		query:  query,
		stmt:   compiled,
		params: params,
		order:  names,
		bound:  make(map[string]Value, len(names)),
	}, nil
}

// Bind sets the named parameter to v. Binding Null() produces SQL
// NULL; parameters never bound also execute as NULL. Panics if name is
// not a parameter of the compiled SQL or the statement is closed.
func (s *Stmt) Bind(name string, v Value) {
	if s.closed {
		panic("sqlitekit: Bind on closed statement")
	}
	if _, ok := s.params[name]; !ok {
		panic(fmt.Sprintf("sqlitekit: %q is not a parameter of %q", name, s.query))
	}
	s.bound[name] = v
}

// Execute steps the statement to completion under the owner's write
// access. A statement that produces a row is an error for this call
// shape; use Query for result sets. The statement is reset and ready
// for rebinding when Execute returns.
func (s *Stmt) Execute(ctx context.Context) error {
	if s.closed {
		return ErrStmtClosed
	}
	s.invalidateRows()

	return s.owner.withWriteAccess(func() error {
		s.conn.mu.RLock()
		defer s.conn.mu.RUnlock()
		if s.conn.closed {
			return ErrClosed
		}

		rows, err := s.stmt.QueryContext(ctx, s.namedArgs()...)
		if err != nil {
			return wrapError(err)
		}
		defer rows.Close() //nolint:errcheck // Close error is reported by rows.Err below

		if rows.Next() {
			return &Error{Message: "statement produced a row; use Query for result sets"}
		}
		return wrapError(rows.Err())
	})
}

// Query runs the statement and returns a cursor positioned before the
// first row. Bindings are captured at this point and persist across
// Rewind. Opening a new cursor invalidates the previous one.
func (s *Stmt) Query(ctx context.Context) (*Rows, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	s.invalidateRows()

	s.conn.mu.RLock()
	defer s.conn.mu.RUnlock()
	if s.conn.closed {
		return nil, ErrClosed
	}

	args := s.namedArgs()
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	s.rows = &Rows{stmt: s, rows: rows, args: args}
	return s.rows, nil
}

// Close finalizes the compiled program. Double close is a no-op.
func (s *Stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.invalidateRows()
	if err := s.stmt.Close(); err != nil {
		return wrapError(err)
	}
	return nil
}

// invalidateRows closes the active cursor, if any. A cursor never
// survives its statement being re-executed or closed.
func (s *Stmt) invalidateRows() {
	if s.rows != nil {
		s.rows.Close()
		s.rows = nil
	}
}

// namedArgs materialises the bound set for the driver, in declaration
// order, filling unbound parameters with NULL.
func (s *Stmt) namedArgs() []any {
	args := make([]any, 0, len(s.order))
	for _, name := range s.order {
		if v, ok := s.bound[name]; ok {
			args = append(args, sql.Named(name, v.driverValue()))
		} else {
			args = append(args, sql.Named(name, nil))
		}
	}
	return args
}

// scanParams extracts the named parameters (:name, @name, $name) from
// sql in first-appearance order, skipping string literals, quoted
// identifiers, and comments. This mirrors the query scanning sqlx does
// for its named-exec layer, done once at prepare time so Bind can
// validate names immediately.
func scanParams(query string) []string {
	var (
		names []string
		seen  = map[string]struct{}{}
	)

	isNameByte := func(b byte) bool {
		return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
	}

	for i := 0; i < len(query); i++ {
		switch b := query[i]; b {
		case '\'', '"', '`':
			// String literal or quoted identifier: skip to the
			// closing quote, honouring doubled-quote escapes.
			for i++; i < len(query); i++ {
				if query[i] == b {
					if i+1 < len(query) && query[i+1] == b {
						i++
						continue
					}
					break
				}
			}
		case '[':
			// Bracket-quoted identifier.
			for i++; i < len(query) && query[i] != ']'; i++ {
			}
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				for i += 2; i < len(query) && query[i] != '\n'; i++ {
				}
			}
		case '/':
			if i+1 < len(query) && query[i+1] == '*' {
				for i += 2; i+1 < len(query); i++ {
					if query[i] == '*' && query[i+1] == '/' {
						i++
						break
					}
				}
			}
		case ':', '@', '$':
			start := i + 1
			end := start
			for end < len(query) && isNameByte(query[end]) {
				end++
			}
			if end == start {
				continue // bare punctuation, e.g. the :: cast
			}
			name := query[start:end]
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				names = append(names, name)
			}
			i = end - 1
		}
	}
	return names
}
