package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/tallybot/tallybot/internal/ledger"
	"github.com/tallybot/tallybot/internal/money"
)

// ErrRatesPending is returned when a settlement is asked to complete
// while conversion pairs still await a rate.
var ErrRatesPending = errors.New("exchange rates still pending")

// Settlement is the rate-collection state of one settlement run: a
// target currency, a queue of currency pairs awaiting a user-supplied
// rate, and the table of rates collected so far. The table lives only as
// long as the session; a later run re-collects rates even for the same
// pairs.
type Settlement struct {
	Target  string
	pending []ledger.RatePair
	rates   ledger.RateTable
	touched time.Time
}

// NewSettlement builds a settlement session for the target currency with
// the given conversion queue.
func NewSettlement(target string, pending []ledger.RatePair) *Settlement {
	return &Settlement{
		Target:  target,
		pending: pending,
		rates:   make(ledger.RateTable),
	}
}

// Next returns the pair currently awaiting a rate. ok is false when the
// queue is empty.
func (s *Settlement) Next() (pair ledger.RatePair, ok bool) {
	if len(s.pending) == 0 {
		return ledger.RatePair{}, false
	}
	return s.pending[0], true
}

// SupplyRate resolves the pair at the head of the queue. The source must
// match the head pair so an out-of-order reply from a stale prompt is
// rejected rather than applied to the wrong pair.
func (s *Settlement) SupplyRate(source string, rate money.Rate) error {
	head, ok := s.Next()
	if !ok {
		return errors.New("no conversion pending")
	}
	if source != head.Source {
		return fmt.Errorf("expected rate for %s, got %s", head.Source, source)
	}
	if err := s.rates.Set(head, rate); err != nil {
		return err
	}
	s.pending = s.pending[1:]
	return nil
}

// Ready reports whether every queued pair has a rate.
func (s *Settlement) Ready() bool {
	return len(s.pending) == 0
}

// Rates returns the collected rate table. It returns ErrRatesPending
// while the queue is non-empty: an incomplete table must never reach
// normalization.
func (s *Settlement) Rates() (ledger.RateTable, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("%w: %d pair(s) unresolved", ErrRatesPending, len(s.pending))
	}
	return s.rates, nil
}
