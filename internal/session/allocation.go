package session

import (
	"errors"
	"time"

	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
)

// OverflowTolerance is how far the allocation sum may exceed the total
// before finalization is rejected.
const OverflowTolerance money.Amount = 5

// ErrAllocationOverflow is returned by Finalize when the allocations sum
// to more than the total plus the tolerance. The session stays alive so
// the caller can adjust entries and retry.
var ErrAllocationOverflow = errors.New("allocated total exceeds payment total")

// Allocation accumulates the per-person amounts of an itemized split.
// Entries may be re-set at any time before finalization; setting an
// amount for a person who already has one overwrites it.
type Allocation struct {
	PayerID     int64
	Total       money.Amount
	Currency    string
	Description string

	entries map[int64]money.Amount
	touched time.Time
}

// NewAllocation starts an empty allocation for the payment.
func NewAllocation(payerID int64, total money.Amount, currency, description string) *Allocation {
	return &Allocation{
		PayerID:     payerID,
		Total:       total,
		Currency:    currency,
		Description: description,
		entries:     make(map[int64]money.Amount),
	}
}

// Set records (or overwrites) the amount allocated to a user. Negative
// amounts are rejected; zero clears a prior entry.
func (a *Allocation) Set(userID int64, amount money.Amount) error {
	if amount < 0 {
		return errors.New("allocation must not be negative")
	}
	if amount == 0 {
		delete(a.entries, userID)
		return nil
	}
	a.entries[userID] = amount
	return nil
}

// Allocated returns the sum of all entries.
func (a *Allocation) Allocated() money.Amount {
	var sum money.Amount
	for _, v := range a.entries {
		sum += v
	}
	return sum
}

// Remaining returns the unallocated part of the total. Negative when the
// entries overshoot.
func (a *Allocation) Remaining() money.Amount {
	return a.Total - a.Allocated()
}

// Entries returns a copy of the current allocation map.
func (a *Allocation) Entries() map[int64]money.Amount {
	out := make(map[int64]money.Amount, len(a.entries))
	for userID, v := range a.entries {
		out[userID] = v
	}
	return out
}

// Finalize validates the accumulated entries and produces the itemized
// split spec. The sum may exceed the total by at most OverflowTolerance;
// beyond that the finalization is rejected and the session is left
// untouched for a retry. A shortfall above the settlement tolerance is
// assigned to the payer as their own share (the payer's share never
// becomes an obligation).
func (a *Allocation) Finalize() (models.SplitSpec, error) {
	allocated := a.Allocated()
	if allocated > a.Total+OverflowTolerance {
		return models.SplitSpec{}, ErrAllocationOverflow
	}

	entries := a.Entries()
	if remaining := a.Total - allocated; remaining > money.Epsilon {
		entries[a.PayerID] += remaining
	}
	return models.Itemized(entries), nil
}
