// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface on top of a pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallybot/tallybot/internal/storage"
)

// Ensure PostgresStore implements storage.Store
var _ storage.Store = (*PostgresStore)(nil)

// PostgresStore implements storage.Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to the database, verifies the connection and runs
// migrations.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT NOT NULL,
			chat_id BIGINT NOT NULL,
			thread_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (user_id, chat_id, thread_id)
		);

		CREATE TABLE IF NOT EXISTS pay_records (
			pay_record_id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			thread_id BIGINT NOT NULL,
			from_user_id BIGINT NOT NULL,
			to_user_id BIGINT NOT NULL,
			currency TEXT NOT NULL,
			value_cents BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payment_groups (
			group_id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			thread_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			created_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payment_group_links (
			link_id BIGSERIAL PRIMARY KEY,
			group_id BIGINT NOT NULL REFERENCES payment_groups(group_id),
			pay_record_id BIGINT NOT NULL REFERENCES pay_records(pay_record_id)
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_context ON users(chat_id, thread_id);
		CREATE INDEX IF NOT EXISTS idx_pay_records_context ON pay_records(chat_id, thread_id);
		CREATE INDEX IF NOT EXISTS idx_payment_groups_context ON payment_groups(chat_id, thread_id);
		CREATE INDEX IF NOT EXISTS idx_group_links_group ON payment_group_links(group_id);
	`)
	return err
}
