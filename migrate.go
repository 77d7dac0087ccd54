package sqlitekit

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Migration is a single schema migration loaded from a filesystem.
// Files are named NNN_description.sql where NNN is the integer version
// the database's user_version is raised to when the file is applied.
type Migration struct {
	// Version is the integer version this migration raises the
	// schema to. Versions must be positive and are applied in order.
	Version int

	// Name is the human-readable description from the filename.
	Name string

	// SQL is the statement batch to apply.
	SQL string
}

// Migrate applies all pending migrations from dir within fsys.
// A migration is pending when its version is greater than the current
// PRAGMA user_version.
//
// # Atomicity
//
// Each migration runs in its own transaction together with the
// user_version bump. If migration N fails:
//   - Migrations up to N-1 remain committed, user_version = N-1
//   - Migration N is rolled back entirely
//   - Migrations after N are not attempted
//
// Re-running Migrate after fixing the failure continues from N.
func (c *Conn) Migrate(ctx context.Context, fsys fs.FS, dir string) error {
	migrations, err := loadMigrations(fsys, dir)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	if len(migrations) == 0 {
		return nil
	}

	current, err := c.UserVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := c.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %d (%s): %w", m.Version, m.Name, err)
		}
		c.log.Info("migration applied", "version", m.Version, "name", m.Name)
	}
	return nil
}

// MigrationStatus reports the current schema version and the
// migrations from fsys that have not been applied yet.
func (c *Conn) MigrationStatus(ctx context.Context, fsys fs.FS, dir string) (current int, pending []Migration, err error) {
	current, err = c.UserVersion(ctx)
	if err != nil {
		return 0, nil, err
	}

	migrations, err := loadMigrations(fsys, dir)
	if err != nil {
		return 0, nil, err
	}
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return current, pending, nil
}

// applyMigration runs one migration and the version bump in a single
// transaction frame. user_version is stored in the database header and
// rolls back with the frame.
func (c *Conn) applyMigration(ctx context.Context, m Migration) error {
	return c.Transaction(ctx, func(tx *Tx) error {
		if err := tx.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}
		if err := tx.Exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("recording version: %w", err)
		}
		return nil
	})
}

// loadMigrations reads all migration files from dir, sorted by version
// (oldest first). Duplicate versions are an error.
func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("version %d declared by both %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(data),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFilename extracts version and description from a
// migration filename. Example: "003_add_index.sql" -> (3, "add_index").
func parseMigrationFilename(name string) (version int, desc string, ok bool) {
	if !strings.HasSuffix(name, ".sql") {
		return 0, "", false
	}
	base := strings.TrimSuffix(name, ".sql")

	prefix, desc, found := strings.Cut(base, "_")
	if !found {
		return 0, "", false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", false
	}
	return version, desc, true
}
