package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallybot/tallybot/internal/models"
)

// Users returns all registered users for the context, ordered by
// registration time.
func (s *SQLiteStore) Users(ctx context.Context, c models.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, created_at FROM users
		 WHERE chat_id = ? AND thread_id = ?
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
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, chat_id, thread_id, name, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, chat_id, thread_id) DO UPDATE SET name = excluded.name`,
		user.ID, user.Context.ChatID, user.Context.ThreadID, user.Name, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UserNameExists reports whether another user in the context already
// holds the name (case-insensitive).
func (s *SQLiteStore) UserNameExists(ctx context.Context, c models.Context, name string, excludeUserID int64) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM users
		 WHERE chat_id = ? AND thread_id = ? AND lower(name) = lower(?) AND user_id != ?
		 LIMIT 1`,
		c.ChatID, c.ThreadID, name, excludeUserID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user name: %w", err)
	}
	return true, nil
}

// CreateAccount persists a new API account.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt == 0 {
		account.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, display_name, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.Email, account.DisplayName, account.PasswordHash, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccountByEmail retrieves an API account by email.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.getAccount(ctx, "email", email)
}

// GetAccountByID retrieves an API account by ID.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return s.getAccount(ctx, "id", id)
}

func (s *SQLiteStore) getAccount(ctx context.Context, column, value string) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, display_name, password_hash, created_at FROM accounts WHERE "+column+" = ?",
		value,
	).Scan(&account.ID, &account.Email, &account.DisplayName, &account.PasswordHash, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil // Account not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by %s: %w", column, err)
	}
	return account, nil
}
