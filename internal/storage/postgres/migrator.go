package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Схема checkout мигрирует SQL-файлами вида NNNN_name.up.sql / NNNN_name.down.sql.
const (
	migrationsDir = "sql/migrations"

	// checkoutMigrationLock: ключ advisory-lock, чтобы два процесса не мигрировали одновременно.
	checkoutMigrationLock = int64(0x636b6f7574)

	schemaVersionsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

var migrationName = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// migration: пара скриптов одной версии схемы.
type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// MigrateUp накатывает не более steps миграций; steps=0 накатывает все ожидающие.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []migration) error {
		done, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		pending := slices.DeleteFunc(slices.Clone(all), func(m migration) bool { return done[m.Version] })
		if steps > 0 && len(pending) > steps {
			pending = pending[:steps]
		}
		for _, m := range pending {
			if err := runMigration(ctx, conn, m.UpSQL, "up "+m.label(),
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций. Без явного числа шагов откатывается одна.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	steps = max(steps, 1)
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []migration) error {
		byVersion := make(map[int64]migration, len(all))
		for _, m := range all {
			byVersion[m.Version] = m
		}

		done, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		applied := make([]int64, 0, len(done))
		for version := range done {
			applied = append(applied, version)
		}
		slices.SortFunc(applied, func(a, b int64) int { return cmp.Compare(b, a) })
		if len(applied) > steps {
			applied = applied[:steps]
		}

		for _, version := range applied {
			m, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("applied migration %d has no script to roll back", version)
			}
			if err := runMigration(ctx, conn, m.DownSQL, "down "+m.label(),
				`DELETE FROM schema_migrations WHERE version = $1`, m.Version); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает номер последней применённой версии и общее число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errors.New("postgres store is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaVersionsDDL); err != nil {
		return 0, 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	var (
		latest int64
		count  int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`,
	).Scan(&latest, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("read schema_migrations: %w", err)
	}
	return latest, count, nil
}

// withMigrationLock держит advisory-lock на выделенном соединении, пока выполняется fn.
func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn, []migration) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	all, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("reserve migration connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	_, err = conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, checkoutMigrationLock)
	cancel()
	if err != nil {
		return fmt.Errorf("lock schema migrations: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, checkoutMigrationLock)
	}()

	if _, err := conn.ExecContext(ctx, schemaVersionsDDL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return fn(conn, all)
}

// runMigration выполняет скрипт и правку schema_migrations в одной транзакции.
func runMigration(ctx context.Context, conn *sql.Conn, script, label, bookkeeping string, args ...any) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", label, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("migration %s: %w", label, err)
	}
	if _, err = tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("migration %s: record version: %w", label, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", label, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[version] = true
	}
	return done, rows.Err()
}

// loadMigrationsFromFS собирает пары up/down из каталога миграций, упорядоченные по версии.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsDir, err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		file := entry.Name()
		parts := migrationName.FindStringSubmatch(file)
		if parts == nil {
			return nil, fmt.Errorf("migration file %q does not match NNNN_name.(up|down).sql", file)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration file %q: bad version: %w", file, err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, file))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", file, err)
		}
		script := strings.TrimSpace(string(raw))
		if script == "" {
			return nil, fmt.Errorf("migration file %q is empty", file)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if m.Name != parts[2] {
			return nil, fmt.Errorf("migration %d is named both %q and %q", version, m.Name, parts[2])
		}

		target := &m.UpSQL
		if parts[3] == "down" {
			target = &m.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("migration %s has two %s scripts", m.label(), parts[3])
		}
		*target = script
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}
