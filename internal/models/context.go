package models

import "fmt"

// Context identifies one ledger scope: a chat and an optional thread
// inside it. Users, obligations and groups are all scoped to a context.
type Context struct {
	// ChatID is the chat identifier as reported by the chat platform.
	ChatID int64

	// ThreadID is the sub-thread identifier, or 0 when the chat has no
	// threads. Zero is the stored sentinel, so "no thread" always maps
	// to the same context.
	ThreadID int64
}

func (c Context) String() string {
	return fmt.Sprintf("%d/%d", c.ChatID, c.ThreadID)
}
