package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var MigrationsFS embed.FS

// migrationLockKey identifies the schema migration advisory lock.
const migrationLockKey int64 = 0x72756773656e74

var migrationFilePattern = regexp.MustCompile(`^migrations/([0-9]+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one versioned schema change with both directions.
type Migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationPool is the subset of pgxpool.Pool the migrator needs.
type MigrationPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

func EnsureMigrationTable(ctx context.Context, pool MigrationPool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`)
	return err
}

// LoadMigrations parses NNNN_name.(up|down).sql files, sorted by version. Every version needs
// both directions.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	paths, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no migration files found")
	}

	index := make(map[int64]*Migration)
	for _, p := range paths {
		version, name, down, err := parseMigrationPath(p)
		if err != nil {
			return nil, err
		}
		body, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", p, err)
		}
		script := strings.TrimSpace(string(body))
		if script == "" {
			return nil, fmt.Errorf("empty migration file: %s", p)
		}

		m := index[version]
		switch {
		case m == nil:
			m = &Migration{Version: version, Name: name}
			index[version] = m
		case m.Name != name:
			return nil, fmt.Errorf("conflicting names for version %d: %s vs %s", version, m.Name, name)
		}
		if err := m.set(down, script); err != nil {
			return nil, err
		}
	}

	out := make([]Migration, 0, len(index))
	for _, m := range index {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration version %d must include both up and down files", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func parseMigrationPath(p string) (version int64, name string, down bool, err error) {
	m := migrationFilePattern.FindStringSubmatch(p)
	if m == nil {
		return 0, "", false, fmt.Errorf("invalid migration filename: %s", p)
	}
	version, err = strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, "", false, fmt.Errorf("parse version in %s: %w", p, err)
	}
	return version, m[2], m[3] == "down", nil
}

func (m *Migration) set(down bool, script string) error {
	target, direction := &m.UpSQL, "up"
	if down {
		target, direction = &m.DownSQL, "down"
	}
	if *target != "" {
		return fmt.Errorf("duplicate %s migration for version %d", direction, m.Version)
	}
	*target = script
	return nil
}

// Pending returns the migrations whose version is not in applied, in order.
func Pending(migrations []Migration, applied map[int64]struct{}) []Migration {
	var out []Migration
	for _, m := range migrations {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out
}

func appliedVersions(ctx context.Context, pool MigrationPool) (map[int64]struct{}, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int64]struct{})
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = struct{}{}
	}
	return applied, rows.Err()
}

// ApplyUp runs every pending migration, each in its own transaction. Each transaction takes
// the migration advisory lock and re-checks the version, so replicas starting together apply
// every version once.
func ApplyUp(ctx context.Context, pool MigrationPool, migrations []Migration) (int, error) {
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range Pending(migrations, applied) {
		ran, err := runLocked(ctx, pool, m.Version, true, m.UpSQL,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
		if err != nil {
			return count, fmt.Errorf("version %d up failed: %w", m.Version, err)
		}
		if !ran {
			log.WithField("version", m.Version).Debug("migration applied concurrently, skipping")
			continue
		}
		log.WithFields(log.Fields{"version": m.Version, "name": m.Name}).Info("migration applied")
		count++
	}
	return count, nil
}

// ApplyDown rolls back the newest `steps` applied migrations.
func ApplyDown(ctx context.Context, pool MigrationPool, migrations []Migration, steps int) (int, error) {
	if steps <= 0 {
		return 0, fmt.Errorf("steps must be > 0")
	}

	byVersion := make(map[int64]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, steps)
	if err != nil {
		return 0, err
	}
	versions := make([]int64, 0, steps)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return 0, err
		}
		versions = append(versions, version)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	rolledBack := 0
	for _, version := range versions {
		m, ok := byVersion[version]
		if !ok {
			return rolledBack, fmt.Errorf("cannot find migration source for applied version %d", version)
		}
		ran, err := runLocked(ctx, pool, m.Version, false, m.DownSQL, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
		if err != nil {
			return rolledBack, fmt.Errorf("version %d down failed: %w", m.Version, err)
		}
		if !ran {
			continue
		}
		log.WithFields(log.Fields{"version": m.Version, "name": m.Name}).Info("migration rolled back")
		rolledBack++
	}
	return rolledBack, nil
}

// runLocked runs script and the bookkeeping statement under the migration lock. For up the
// version must not be recorded yet, for down it must be; otherwise ran is false because another
// instance got there first.
func runLocked(ctx context.Context, pool MigrationPool, version int64, up bool, script, record string, args ...any) (ran bool, err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
		return false, fmt.Errorf("acquire migration lock: %w", err)
	}
	var recorded bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&recorded); err != nil {
		return false, err
	}
	if recorded == up {
		return false, nil
	}

	if _, err := tx.Exec(ctx, script); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, record, args...); err != nil {
		return false, fmt.Errorf("record version: %w", err)
	}
	return true, tx.Commit(ctx)
}

// CurrentVersion returns 0 when nothing has been applied.
func CurrentVersion(ctx context.Context, pool MigrationPool) (int64, string, error) {
	var version int64
	var name string
	err := pool.QueryRow(ctx, `SELECT version, name FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &name)
	if err == nil {
		return version, name, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", nil
	}
	return 0, "", err
}

// Migrate brings the schema up to date using the embedded migrations.
func Migrate(ctx context.Context, pool MigrationPool) error {
	if err := EnsureMigrationTable(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	migrations, err := LoadMigrations(MigrationsFS)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if _, err := ApplyUp(ctx, pool, migrations); err != nil {
		return err
	}
	return nil
}
