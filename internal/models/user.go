package models

// User is a ledger participant registered in one context. The same
// person registering in two chats yields two independent User rows.
//
// Display names are unique per context (case-insensitive) at
// registration time. Obligations reference user IDs, not names, so a
// later rename leaves history intact.
type User struct {
	// ID is the platform user identifier.
	ID int64

	// Context is the chat/thread the user registered in.
	Context Context

	// Name is the display name chosen at registration (2-20 characters,
	// letters and spaces).
	Name string

	// CreatedAt is the Unix timestamp of first registration.
	CreatedAt int64
}
