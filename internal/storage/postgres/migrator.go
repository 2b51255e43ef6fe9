package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey сериализует прогон миграций между инстансами сервиса.
const advisoryLockKey = int64(74201811)

const ledgerDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var migrationNameRe = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// schemaStep — пара up/down скриптов одной версии схемы.
type schemaStep struct {
	version int64
	name    string
	up      string
	down    string
}

// MigrateUp применяет недостающие up-миграции; steps=0 — все доступные.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []schemaStep) error {
		done, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		ran := 0
		for _, step := range all {
			if done[step.version] {
				continue
			}
			if err := runStep(ctx, conn, step, true); err != nil {
				return err
			}
			ran++
			if steps > 0 && ran >= steps {
				break
			}
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций; steps<=0 трактуется как 1,
// чтобы случайный запуск не снёс всю схему.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []schemaStep) error {
		byVersion := make(map[int64]schemaStep, len(all))
		for _, step := range all {
			byVersion[step.version] = step
		}

		rows, err := conn.QueryContext(ctx,
			`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, steps)
		if err != nil {
			return fmt.Errorf("select versions to rollback: %w", err)
		}
		defer rows.Close()

		var targets []int64
		for rows.Next() {
			var v int64
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("scan version: %w", err)
			}
			targets = append(targets, v)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate versions: %w", err)
		}

		for _, v := range targets {
			step, ok := byVersion[v]
			if !ok {
				return fmt.Errorf("applied version %d has no migration file", v)
			}
			if err := runStep(ctx, conn, step, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает максимальную применённую версию и число записей.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errors.New("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, ledgerDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	var (
		version int64
		applied int
	)
	err := s.db.QueryRowContext(queryCtx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`,
	).Scan(&version, &applied)
	if err != nil {
		return 0, 0, fmt.Errorf("read schema_migrations: %w", err)
	}
	return version, applied, nil
}

// withMigrationLock держит advisory lock на всё время прогона: параллельный
// запуск второго инстанса блокируется, а не гонится по DDL.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn, all []schemaStep) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	all, err := loadSchemaSteps(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockKey)
	}()

	if _, err := conn.ExecContext(ctx, ledgerDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn, all)
}

// runStep исполняет скрипт и правит schema_migrations в одной транзакции.
func runStep(ctx context.Context, conn *sql.Conn, step schemaStep, up bool) error {
	label := fmt.Sprintf("%d_%s", step.version, step.name)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", label, err)
	}

	script := step.down
	ledger := `DELETE FROM schema_migrations WHERE version = $1`
	if up {
		script = step.up
		ledger = `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`
	}

	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply %s: %w", label, err)
	}

	if up {
		_, err = tx.ExecContext(ctx, ledger, step.version, step.name)
	} else {
		_, err = tx.ExecContext(ctx, ledger, step.version)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s: %w", label, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("select applied versions: %w", err)
	}
	defer rows.Close()

	done := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return done, nil
}

// loadSchemaSteps собирает пары NNN_name.{up,down}.sql в отсортированный список.
// Версия без одной из половин — ошибка: откат без down-скрипта невозможен.
func loadSchemaSteps(fsys fs.FS) ([]schemaStep, error) {
	files, err := fs.Glob(fsys, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files embedded")
	}

	steps := make(map[int64]*schemaStep)
	for _, file := range files {
		base := filepath.Base(file)
		m := migrationNameRe.FindStringSubmatch(base)
		if m == nil {
			return nil, fmt.Errorf("unexpected migration file name: %s", base)
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version in %s: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", base, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("empty migration file: %s", base)
		}

		step, ok := steps[version]
		if !ok {
			step = &schemaStep{version: version, name: m[2]}
			steps[version] = step
		} else if step.name != m[2] {
			return nil, fmt.Errorf("version %d carries two names: %s and %s", version, step.name, m[2])
		}

		if m[3] == "up" {
			if step.up != "" {
				return nil, fmt.Errorf("duplicate up script for version %d", version)
			}
			step.up = body
		} else {
			if step.down != "" {
				return nil, fmt.Errorf("duplicate down script for version %d", version)
			}
			step.down = body
		}
	}

	result := make([]schemaStep, 0, len(steps))
	for _, step := range steps {
		if step.up == "" || step.down == "" {
			return nil, fmt.Errorf("migration %d_%s is missing its up or down half", step.version, step.name)
		}
		result = append(result, *step)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].version < result[j].version })
	return result, nil
}
