package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS code_rooms (
	name       VARCHAR(10) PRIMARY KEY,
	language   VARCHAR(20) NOT NULL DEFAULT 'python',
	creator    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and makes sure the rooms table
// exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create code_rooms table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Create inserts r.
func (s *PostgresStore) Create(ctx context.Context, r Room) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO code_rooms (name, language, creator, created_at) VALUES ($1, $2, $3, $4)`,
		r.Name, r.Language, r.Creator, r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrRoomExists
		}
		return fmt.Errorf("insert room %s: %w", r.Name, err)
	}
	return nil
}

// FindByName loads a room by its code.
func (s *PostgresStore) FindByName(ctx context.Context, name string) (Room, error) {
	var r Room
	err := s.pool.QueryRow(ctx,
		`SELECT name, language, creator, created_at FROM code_rooms WHERE name = $1`, name,
	).Scan(&r.Name, &r.Language, &r.Creator, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("load room %s: %w", name, err)
	}
	return r, nil
}
