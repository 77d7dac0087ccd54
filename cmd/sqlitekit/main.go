// Command sqlitekit is a small operational tool for sqlitekit-managed
// databases: it opens a database from flags or a YAML config file,
// applies pending migrations, and can run a one-off statement or query.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nerrad567/sqlitekit"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0"
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual tool logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sqlitekit", flag.ContinueOnError)
	var (
		configPath    = fs.String("config", "", "path to YAML config file")
		dbPath        = fs.String("db", "", "database file path (overrides config)")
		migrationsDir = fs.String("migrations", "", "directory of NNN_name.sql migration files to apply")
		execSQL       = fs.String("exec", "", "statement to execute (no result set)")
		querySQL      = fs.String("query", "", "query to run; rows are printed tab-separated")
		logLevel      = fs.String("log-level", "info", "log level: debug, info, warn, error")
		showVersion   = fs.Bool("version", false, "print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Println("sqlitekit", version)
		return nil
	}

	cfg := sqlitekit.DefaultConfig()
	if *configPath != "" {
		loaded, err := sqlitekit.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *dbPath != "" {
		cfg.Path = *dbPath
	}
	if cfg.Path == "" {
		return fmt.Errorf("no database path: pass -db or -config")
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))

	db, err := sqlitekit.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Best effort on shutdown

	if *migrationsDir != "" {
		if err := db.Migrate(ctx, os.DirFS(*migrationsDir), "."); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}

	if *execSQL != "" {
		if err := db.Exec(ctx, *execSQL); err != nil {
			return fmt.Errorf("executing statement: %w", err)
		}
		affected, err := db.RowsAffected(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d row(s) affected\n", affected)
	}

	if *querySQL != "" {
		if err := printQuery(ctx, db, *querySQL); err != nil {
			return fmt.Errorf("running query: %w", err)
		}
	}

	return nil
}

// printQuery runs a query and writes rows to stdout, one line per row,
// columns tab-separated with NULL rendered as empty.
func printQuery(ctx context.Context, db *sqlitekit.Conn, query string) error {
	stmt, err := db.Prepare(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck // Read-only statement

	rows, err := stmt.Query(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols := rows.Columns()
	fmt.Println(strings.Join(cols, "\t"))
	for rows.Next() {
		fields := make([]string, len(cols))
		for i := range cols {
			fields[i], _ = rows.Text(i)
		}
		fmt.Println(strings.Join(fields, "\t"))
	}
	return rows.Err()
}

// parseLevel converts a string log level to slog.Level, defaulting to
// info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
