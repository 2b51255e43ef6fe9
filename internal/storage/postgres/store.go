package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// opTimeout ограничивает каждый одиночный запрос репозитория.
const opTimeout = 5 * time.Second

const pingTimeout = 5 * time.Second

// poolSettings — лимиты sql.DB пула. Значения по умолчанию рассчитаны на
// один инстанс сервиса рядом с небольшим postgres.
type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

func defaultPool() poolSettings {
	return poolSettings{
		maxOpen:     25,
		maxIdle:     25,
		maxLifetime: 30 * time.Minute,
		maxIdleTime: 5 * time.Minute,
	}
}

// OpenOption подстраивает параметры подключения.
type OpenOption func(*poolSettings)

// WithMaxConns задаёт предел открытых и простаивающих соединений пула.
func WithMaxConns(n int) OpenOption {
	return func(p *poolSettings) {
		if n > 0 {
			p.maxOpen = n
			p.maxIdle = n
		}
	}
}

// Store держит пул соединений с PostgreSQL; репозитории получают *sql.DB через DB().
type Store struct {
	db *sql.DB
}

// Open подключается через pgx stdlib-драйвер и сразу проверяет базу пингом:
// неверный DSN должен падать на старте, а не на первом запросе.
func Open(ctx context.Context, dsn string, options ...OpenOption) (*Store, error) {
	pool := defaultPool()
	for _, option := range options {
		option(&pool)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(pool.maxOpen)
	db.SetMaxIdleConns(pool.maxIdle)
	db.SetConnMaxLifetime(pool.maxLifetime)
	db.SetConnMaxIdleTime(pool.maxIdleTime)

	s := &Store{db: db}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность базы; используется health-чекером.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
