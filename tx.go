package sqlitekit

import (
	"context"
	"errors"
	"fmt"
)

// Tx is one frame of a nested logical transaction. The outermost frame
// maps to BEGIN IMMEDIATE / COMMIT / ROLLBACK; inner frames map to
// SAVEPOINT / RELEASE SAVEPOINT / ROLLBACK TO SAVEPOINT with
// depth-derived names (sp2, sp3, ...). Frames are created and destroyed
// strictly LIFO: the only way to open one is Transaction or
// TransactionWithCancel, and it is finished before that call returns.
//
// A Tx is also the write-gate capability: the body holding it may issue
// nested writes through it without blocking on the gate it already
// owns. Do not call Conn-level write methods from inside a transaction
// body; they would block on the gate the body holds.
type Tx struct {
	conn      *Conn
	depth     int    // 1 = outermost
	name      string // savepoint identifier, empty for the outermost frame
	done      bool
	cancelled bool
}

// Transaction runs fn inside a new transaction, serialized through the
// write gate. If fn returns an error the frame is rolled back and the
// error is propagated unmodified; otherwise the frame commits.
func (c *Conn) Transaction(ctx context.Context, fn func(*Tx) error) error {
	c.gate.acquire()
	defer c.gate.release()
	_, err := c.runFrame(ctx, 1, fn)
	return err
}

// TransactionWithCancel runs fn inside a new transaction that the body
// may abandon by calling Cancel on its Tx. It returns (true, nil) when
// the frame committed and (false, nil) when the body cancelled;
// cancellation is an ordinary negative outcome, not an error. An error
// from fn still rolls back and propagates, with committed == false.
func (c *Conn) TransactionWithCancel(ctx context.Context, fn func(*Tx) error) (bool, error) {
	c.gate.acquire()
	defer c.gate.release()
	return c.runFrame(ctx, 1, fn)
}

// Transaction opens a nested frame as a savepoint under the already
// held gate. An inner rollback undoes only the inner frame's writes;
// the outer frame's pending writes stay intact and uncommitted.
func (tx *Tx) Transaction(ctx context.Context, fn func(*Tx) error) error {
	if tx.done {
		return ErrTxDone
	}
	_, err := tx.conn.runFrame(ctx, tx.depth+1, fn)
	return err
}

// TransactionWithCancel opens a nested cancellable frame. Cancelling it
// rolls back to its own savepoint only; the enclosing frame can still
// commit afterwards.
func (tx *Tx) TransactionWithCancel(ctx context.Context, fn func(*Tx) error) (bool, error) {
	if tx.done {
		return false, ErrTxDone
	}
	return tx.conn.runFrame(ctx, tx.depth+1, fn)
}

// Cancel abandons the current frame: it rolls back immediately and the
// enclosing TransactionWithCancel returns (false, nil). Further use of
// this frame returns ErrTxDone. Cancelling an already finished frame
// is an error.
//
// Cancel belongs to frames opened with TransactionWithCancel, whose
// boolean result carries the outcome. A frame opened with Transaction
// is still rolled back, but that call shape reports nil and loses the
// committed/cancelled distinction.
func (tx *Tx) Cancel(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.cancelled = true
	if err := tx.rollback(ctx); err != nil {
		return err
	}
	tx.conn.log.Debug("transaction cancelled", "depth", tx.depth)
	return nil
}

// Exec runs a statement inside this frame, reusing the held gate.
func (tx *Tx) Exec(ctx context.Context, query string, args ...Value) error {
	if tx.done {
		return ErrTxDone
	}
	return tx.conn.exec(ctx, query, valueArgs(args)...)
}

// Prepare compiles a statement whose Execute calls run inside this
// frame. The statement must not outlive the frame.
func (tx *Tx) Prepare(ctx context.Context, query string) (*Stmt, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return newStmt(ctx, tx.conn, txOwner{tx}, query)
}

// runFrame opens a frame at depth, runs fn, and settles the frame from
// fn's outcome. The caller holds the write gate.
func (c *Conn) runFrame(ctx context.Context, depth int, fn func(*Tx) error) (bool, error) {
	tx := &Tx{conn: c, depth: depth}
	if err := tx.begin(ctx); err != nil {
		return false, err
	}

	err := fn(tx)
	switch {
	case tx.cancelled:
		// Cancel already rolled this frame back. An error returned
		// after cancelling still propagates; it just has no frame
		// left to undo.
		return false, err
	case err != nil:
		if rbErr := tx.rollback(ctx); rbErr != nil && !errors.Is(rbErr, ErrTxDone) {
			c.log.Warn("rollback after failed transaction body",
				"depth", depth, "error", rbErr)
		}
		return false, err
	default:
		if err := tx.commit(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
}

// begin issues BEGIN IMMEDIATE for the outermost frame and a savepoint
// for inner frames. IMMEDIATE takes the engine's write lock up front:
// the gate has already decided this caller is the writer, so there is
// no point deferring the engine lock and risking SQLITE_BUSY later.
func (tx *Tx) begin(ctx context.Context) error {
	if tx.depth == 1 {
		return tx.conn.exec(ctx, "BEGIN IMMEDIATE")
	}
	// Depth-derived names cannot collide within the stack and contain
	// no caller-supplied text, so no escaping is needed.
	tx.name = fmt.Sprintf("sp%d", tx.depth)
	return tx.conn.exec(ctx, "SAVEPOINT "+tx.name)
}

func (tx *Tx) commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if tx.depth == 1 {
		return tx.conn.exec(ctx, "COMMIT")
	}
	return tx.conn.exec(ctx, "RELEASE SAVEPOINT "+tx.name)
}

// rollback undoes exactly this frame. For savepoint frames the
// ROLLBACK TO is followed by a RELEASE: rolling back to a savepoint
// rewinds the database but leaves the savepoint on the engine's stack,
// and the release pops it so the frame is truly gone.
func (tx *Tx) rollback(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if tx.depth == 1 {
		return tx.conn.exec(ctx, "ROLLBACK")
	}
	if err := tx.conn.exec(ctx, "ROLLBACK TO SAVEPOINT "+tx.name); err != nil {
		return err
	}
	return tx.conn.exec(ctx, "RELEASE SAVEPOINT "+tx.name)
}
