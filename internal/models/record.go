package models

import "github.com/tallybot/tallybot/internal/money"

// PayRecord is one directed obligation: FromUser paid Value of Currency
// on behalf of ToUser, so ToUser owes FromUser. Records are immutable
// once written; the only mutation is deletion through the undo of their
// whole group.
type PayRecord struct {
	// ID is the store-assigned opaque increasing identifier.
	ID int64

	// Context scopes the record to a chat/thread.
	Context Context

	// FromUserID is the creditor (the person who paid).
	FromUserID int64

	// ToUserID is the debtor (the person the payment was made for).
	ToUserID int64

	// Currency is a short code like "USD" (3-10 characters).
	Currency string

	// Value is the owed amount in cents.
	Value money.Amount

	// CreatedAt is the Unix timestamp when the record was written.
	CreatedAt int64
}

// PaymentGroup is a named batch of obligations created by a single user
// action, e.g. "dinner split among 4". A group's records are created and
// deleted together, never partially.
type PaymentGroup struct {
	ID        int64
	Context   Context
	Name      string
	CreatedAt int64
}

// Transfer is one entry of a settlement plan: FromUser pays ToUser
// Amount of Currency. Plans are derived and never persisted.
type Transfer struct {
	FromUserID int64
	ToUserID   int64
	Amount     money.Amount
	Currency   string
}
