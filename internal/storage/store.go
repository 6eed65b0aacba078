// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/tallybot/tallybot/internal/models"
)

// GroupedRecord is an obligation together with its owning group, as
// needed for history listings. GroupID is 0 for records without a group
// (which the schema allows even though the writer always groups).
type GroupedRecord struct {
	Record    models.PayRecord
	GroupID   int64
	GroupName string
}

// Store defines the interface for ledger storage operations.
// This abstraction allows swapping storage backends (SQLite for
// development and tests, PostgreSQL in production) without changing the
// service layer.
//
// AppendBatch and DeleteLatestGroup are the only multi-row mutations and
// both must be atomic: after either call the group and its records are
// all present or all absent, never partial.
type Store interface {
	// AppendBatch atomically creates a payment group, its obligations
	// and the links between them, returning the new group ID. Record
	// IDs and timestamps are assigned by the store.
	AppendBatch(ctx context.Context, c models.Context, groupName string, records []models.PayRecord) (int64, error)

	// DeleteLatestGroup atomically removes the most recently created
	// group in the context together with its links and obligations.
	// Returns false (and no error) when the context has no groups.
	DeleteLatestGroup(ctx context.Context, c models.Context) (bool, error)

	// Obligations returns all obligations for the context in creation
	// order.
	Obligations(ctx context.Context, c models.Context) ([]models.PayRecord, error)

	// GroupedObligations returns all obligations for the context in
	// creation order, each with its owning group.
	GroupedObligations(ctx context.Context, c models.Context) ([]GroupedRecord, error)

	// Users returns all registered users for the context.
	Users(ctx context.Context, c models.Context) ([]models.User, error)

	// UpsertUser inserts the user or updates their display name.
	UpsertUser(ctx context.Context, user *models.User) error

	// UserNameExists reports whether another user in the context already
	// holds the name, compared case-insensitively. The user with
	// excludeUserID is ignored so a user may re-register their own name.
	UserNameExists(ctx context.Context, c models.Context, name string, excludeUserID int64) (bool, error)

	// CreateAccount persists a new API account. The account ID is
	// assigned by the store when empty.
	CreateAccount(ctx context.Context, account *models.Account) error

	// GetAccountByEmail retrieves an API account by email. Returns
	// (nil, nil) when no account matches.
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)

	// GetAccountByID retrieves an API account by ID. Returns (nil, nil)
	// when no account matches.
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)

	// Close releases any resources held by the store.
	Close() error
}
