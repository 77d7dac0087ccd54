package sqlitekit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Connection setup constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout bounds connectivity verification during Open.
	connectionTimeout = 5 * time.Second
)

// Conn owns exactly one native SQLite handle and exposes the
// transaction, statement, and settings surfaces on top of it.
//
// The handle is pinned: database/sql's pool is capped at one connection
// and that connection is reserved for the lifetime of the Conn, so
// connection-local engine counters (last_insert_rowid, changes,
// total_changes) always refer to this Conn's writes.
//
// Lifecycle is an explicit two-state machine: Open returns an open
// Conn, Close moves it to closed, and every operation on a closed Conn
// returns ErrClosed. There is no implicit reopen.
type Conn struct {
	path string
	id   string
	log  *slog.Logger

	db   *sql.DB
	conn *sql.Conn

	gate writeGate

	// mu guards the closed flag against in-flight operations: reads
	// bypass the write gate but still must not race a Close.
	mu     sync.RWMutex
	closed bool
}

// Open creates a new connection with the specified configuration.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Pins a single connection and verifies it with a ping
//  4. Applies WAL and foreign-key settings from the config
//  5. Sets file permissions (0600)
//
// Returns a *Error if the underlying storage cannot be created or
// opened.
func Open(cfg Config) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Path, cfg.BusyTimeout*msPerSecond)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrapError(fmt.Errorf("opening database: %w", err))
	}

	// One pinned connection: SQLite has a single writer, and the
	// counters surface requires every statement to hit the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	pinned, err := db.Conn(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, wrapError(fmt.Errorf("verifying database connection: %w", err))
	}
	if err := pinned.PingContext(ctx); err != nil {
		pinned.Close() //nolint:errcheck // Best effort cleanup on error path
		db.Close()     //nolint:errcheck // Best effort cleanup on error path
		return nil, wrapError(fmt.Errorf("verifying database connection: %w", err))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		path: cfg.Path,
		id:   "con-" + uuid.NewString()[:8],
		db:   db,
		conn: pinned,
	}
	c.log = logger.With("component", "sqlitekit", "conn_id", c.id)

	if err := c.SetWALMode(ctx, cfg.WALMode); err != nil {
		c.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("applying journal mode: %w", err)
	}
	if err := c.SetForeignKeys(ctx, cfg.ForeignKeys); err != nil {
		c.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("applying foreign keys: %w", err)
	}

	// Ignore error - file might not exist yet on first run, will be
	// set after the first write.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	c.log.Info("database opened", "path", cfg.Path, "wal_mode", cfg.WALMode)
	return c, nil
}

// Close releases the pinned handle and the pool. It is idempotent:
// second and later calls return nil without touching the engine.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	connErr := c.conn.Close()
	dbErr := c.db.Close()
	if connErr != nil {
		return fmt.Errorf("closing connection: %w", connErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing database: %w", dbErr)
	}
	c.log.Info("database closed")
	return nil
}

// Path returns the filesystem path to the database file.
func (c *Conn) Path() string {
	return c.path
}

// Exec runs a statement that returns no rows, serialized through the
// write gate. Use this for DDL and one-off writes; inside a
// transaction body use Tx.Exec instead, which reuses the held gate.
func (c *Conn) Exec(ctx context.Context, query string, args ...Value) error {
	return c.gate.withExclusiveWriteAccess(func() error {
		return c.exec(ctx, query, valueArgs(args)...)
	})
}

// Prepare compiles query against the connection. Compilation does not
// take the write gate; each Execute on the resulting statement does.
func (c *Conn) Prepare(ctx context.Context, query string) (*Stmt, error) {
	return newStmt(ctx, c, connOwner{c}, query)
}

// LastInsertID returns the rowid of the most recent successful INSERT
// on this connection.
func (c *Conn) LastInsertID(ctx context.Context) (int64, error) {
	return c.queryInt64(ctx, "SELECT last_insert_rowid()")
}

// RowsAffected returns the number of rows changed by the most recently
// completed INSERT, UPDATE or DELETE on this connection.
func (c *Conn) RowsAffected(ctx context.Context) (int64, error) {
	return c.queryInt64(ctx, "SELECT changes()")
}

// TotalRowsAffected returns the number of rows changed by all
// statements completed since this connection was opened.
func (c *Conn) TotalRowsAffected(ctx context.Context) (int64, error) {
	return c.queryInt64(ctx, "SELECT total_changes()")
}

// UserVersion reads the user-defined schema version (PRAGMA
// user_version). The migration runner owns this counter, but it is
// writable for external sequencers too.
func (c *Conn) UserVersion(ctx context.Context) (int, error) {
	v, err := c.queryInt64(ctx, "PRAGMA user_version")
	return int(v), err
}

// SetUserVersion writes the user-defined schema version.
func (c *Conn) SetUserVersion(ctx context.Context, version int) error {
	return c.gate.withExclusiveWriteAccess(func() error {
		return c.exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	})
}

// SchemaVersion reads SQLite's internal schema change counter (PRAGMA
// schema_version). Read-only.
func (c *Conn) SchemaVersion(ctx context.Context) (int, error) {
	v, err := c.queryInt64(ctx, "PRAGMA schema_version")
	return int(v), err
}

// ForeignKeys reports whether foreign-key enforcement is enabled.
func (c *Conn) ForeignKeys(ctx context.Context) (bool, error) {
	v, err := c.queryInt64(ctx, "PRAGMA foreign_keys")
	return v != 0, err
}

// SetForeignKeys enables or disables foreign-key enforcement. The
// PRAGMA is only issued when the requested value differs from the
// current one, avoiding redundant schema-level locking.
func (c *Conn) SetForeignKeys(ctx context.Context, enabled bool) error {
	return c.gate.withExclusiveWriteAccess(func() error {
		current, err := c.queryInt64(ctx, "PRAGMA foreign_keys")
		if err != nil {
			return err
		}
		if (current != 0) == enabled {
			return nil
		}
		mode := "OFF"
		if enabled {
			mode = "ON"
		}
		if err := c.exec(ctx, "PRAGMA foreign_keys = "+mode); err != nil {
			return err
		}
		c.log.Debug("foreign key enforcement changed", "enabled", enabled)
		return nil
	})
}

// WALMode reports whether the journal mode is write-ahead logging.
func (c *Conn) WALMode(ctx context.Context) (bool, error) {
	mode, err := c.queryText(ctx, "PRAGMA journal_mode")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(mode, "wal"), nil
}

// SetWALMode switches the journal mode between WAL and DELETE (the
// SQLite default). Issued only when the requested mode differs from
// the current one.
func (c *Conn) SetWALMode(ctx context.Context, enabled bool) error {
	return c.gate.withExclusiveWriteAccess(func() error {
		current, err := c.queryText(ctx, "PRAGMA journal_mode")
		if err != nil {
			return err
		}
		if strings.EqualFold(current, "wal") == enabled {
			return nil
		}
		want := "delete"
		if enabled {
			want = "wal"
		}
		// journal_mode replies with the mode now in effect.
		got, err := c.queryText(ctx, "PRAGMA journal_mode = "+strings.ToUpper(want))
		if err != nil {
			return err
		}
		if !strings.EqualFold(got, want) {
			return &Error{Message: fmt.Sprintf("journal mode is %q, wanted %q", got, want)}
		}
		c.log.Debug("journal mode changed", "wal_mode", enabled)
		return nil
	})
}

// exec runs a statement on the pinned handle under the close guard.
// Callers on the write path hold the gate already.
func (c *Conn) exec(ctx context.Context, query string, args ...any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if _, err := c.conn.ExecContext(ctx, query, args...); err != nil {
		return wrapError(err)
	}
	return nil
}

// queryInt64 runs a single-value integer query outside the write gate.
func (c *Conn) queryInt64(ctx context.Context, query string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}
	var v int64
	if err := c.conn.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, wrapError(err)
	}
	return v, nil
}

// queryText runs a single-value text query outside the write gate.
func (c *Conn) queryText(ctx context.Context, query string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return "", ErrClosed
	}
	var v string
	if err := c.conn.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return "", wrapError(err)
	}
	return v, nil
}

// valueArgs converts positional Values to driver arguments.
func valueArgs(values []Value) []any {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v.driverValue()
	}
	return args
}
