package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tallybot/tallybot/internal/models"
)

// Users returns all registered users for the context, ordered by
// registration time.
func (s *PostgresStore) Users(ctx context.Context, c models.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, name, created_at FROM users
		 WHERE chat_id = $1 AND thread_id = $2
		 ORDER BY created_at ASC, user_id ASC`,
		c.ChatID, c.ThreadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u := models.User{Context: c}
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// UpsertUser inserts the user or updates their display name.
func (s *PostgresStore) UpsertUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, chat_id, thread_id, name, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, chat_id, thread_id) DO UPDATE SET name = EXCLUDED.name`,
		user.ID, user.Context.ChatID, user.Context.ThreadID, user.Name, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UserNameExists reports whether another user in the context already
// holds the name (case-insensitive).
func (s *PostgresStore) UserNameExists(ctx context.Context, c models.Context, name string, excludeUserID int64) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM users
		 WHERE chat_id = $1 AND thread_id = $2 AND lower(name) = lower($3) AND user_id != $4
		 LIMIT 1`,
		c.ChatID, c.ThreadID, name, excludeUserID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user name: %w", err)
	}
	return true, nil
}

// CreateAccount persists a new API account.
func (s *PostgresStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt == 0 {
		account.CreatedAt = time.Now().Unix()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, display_name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.ID, account.Email, account.DisplayName, account.PasswordHash, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccountByEmail retrieves an API account by email.
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.getAccount(ctx, "SELECT id, email, display_name, password_hash, created_at FROM accounts WHERE email = $1", email)
}

// GetAccountByID retrieves an API account by ID.
func (s *PostgresStore) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return s.getAccount(ctx, "SELECT id, email, display_name, password_hash, created_at FROM accounts WHERE id = $1", id)
}

func (s *PostgresStore) getAccount(ctx context.Context, query, arg string) (*models.Account, error) {
	account := &models.Account{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&account.ID, &account.Email, &account.DisplayName, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // Account not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}
