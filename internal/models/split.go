package models

import "github.com/tallybot/tallybot/internal/money"

// SplitKind selects how a recorded payment is divided among payees.
type SplitKind int

const (
	// SplitDirect records the full amount against one explicit payee.
	SplitDirect SplitKind = iota

	// SplitEqual divides the amount evenly across every registered user
	// in the context; the payer's own share is suppressed.
	SplitEqual

	// SplitItemized uses an explicit per-user allocation map; any
	// shortfall against the total is the payer's own share.
	SplitItemized
)

func (k SplitKind) String() string {
	switch k {
	case SplitDirect:
		return "direct"
	case SplitEqual:
		return "equal"
	case SplitItemized:
		return "itemized"
	default:
		return "unknown"
	}
}

// SplitSpec is the tagged payee argument of a payment. Exactly one of
// the payload fields is meaningful, selected by Kind: PayeeID for
// SplitDirect, Allocations for SplitItemized, neither for SplitEqual.
type SplitSpec struct {
	Kind        SplitKind
	PayeeID     int64
	Allocations map[int64]money.Amount
}

// Direct builds a SplitSpec for a single explicit payee.
func Direct(payeeID int64) SplitSpec {
	return SplitSpec{Kind: SplitDirect, PayeeID: payeeID}
}

// Equal builds a SplitSpec dividing the total across all registered users.
func Equal() SplitSpec {
	return SplitSpec{Kind: SplitEqual}
}

// Itemized builds a SplitSpec from an explicit allocation map.
func Itemized(allocations map[int64]money.Amount) SplitSpec {
	return SplitSpec{Kind: SplitItemized, Allocations: allocations}
}
