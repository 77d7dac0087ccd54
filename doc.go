// Package sqlitekit is a thread-safe access layer over a single SQLite
// connection.
//
// This package manages:
//   - Connection lifecycle with WAL mode and pinned single-handle access
//   - Nested logical transactions (BEGIN/COMMIT at the outer scope,
//     savepoints at inner scopes) with an explicit cancel variant
//   - Serialized writes across goroutines with reentrancy inside a
//     transaction body
//   - Prepared statements with named parameters and typed, NULL-aware
//     row decoding
//   - Schema migrations driven by PRAGMA user_version
//
// # Concurrency Model
//
// Any number of goroutines may share one Conn. Every write-capable
// operation passes through a single write gate; while one goroutine's
// transaction is open, all other writers block. The *Tx handle given to
// a transaction body is the proof that the gate is already held, so
// nested writes issued through it never self-deadlock. Read-only
// helpers bypass the gate but can never race a Close.
//
// # Usage
//
//	db, err := sqlitekit.Open(sqlitekit.Config{Path: "data/app.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.Transaction(ctx, func(tx *sqlitekit.Tx) error {
//	    stmt, err := tx.Prepare(ctx, "INSERT INTO events (name, at) VALUES (:name, :at)")
//	    if err != nil {
//	        return err
//	    }
//	    defer stmt.Close()
//	    stmt.Bind("name", sqlitekit.Text("boot"))
//	    stmt.Bind("at", sqlitekit.Timestamp(time.Now()))
//	    return stmt.Execute(ctx)
//	})
//
// # Error Model
//
// Engine failures surface as *Error carrying SQLite's numeric code and
// message. Mismatches between SQL text and calling code (binding a
// parameter the SQL does not declare, reading a column the result set
// does not have) are programming-contract violations and panic.
// Cancelling a transaction is neither: it is an ordinary boolean
// outcome of TransactionWithCancel.
package sqlitekit
