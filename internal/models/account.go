package models

import "time"

// Account is an API account for clients of the HTTP surface (typically
// the chat front end driving the engine). Accounts are global, unlike
// Users, which are scoped to a context.
type Account struct {
	// ID is the unique identifier for the account (UUID format).
	ID string

	// Email is the account's email address (unique). Used for login.
	Email string

	// DisplayName is a human-readable label for the account.
	DisplayName string

	// PasswordHash is the bcrypt hash of the account password.
	PasswordHash string

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64
}

// NewAccount builds an Account with the creation time set. The ID is
// assigned by the store.
func NewAccount(email, displayName, passwordHash string) *Account {
	return &Account{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().Unix(),
	}
}
