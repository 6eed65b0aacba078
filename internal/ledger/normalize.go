package ledger

import (
	"errors"
	"fmt"

	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
)

// ErrMissingRate is returned by Normalize when a record's currency has
// no rate for the target. The rate table must be fully populated before
// normalizing; a silent 1.0 fallback would corrupt balances.
var ErrMissingRate = errors.New("exchange rate not supplied")

// RatePair is one conversion the caller must collect a rate for.
type RatePair struct {
	Source string
	Target string
}

func (p RatePair) String() string {
	return p.Source + "_" + p.Target
}

// RateTable holds user-supplied exchange rates for one settlement run.
// It is ephemeral: rates are collected, consumed once, and discarded.
type RateTable map[string]money.Rate

// Set stores a rate for the pair. The rate must be strictly positive.
func (t RateTable) Set(pair RatePair, rate money.Rate) error {
	if rate <= 0 {
		return fmt.Errorf("rate for %s must be positive", pair)
	}
	t[pair.String()] = rate
	return nil
}

// Rate looks up the rate for the pair.
func (t RateTable) Rate(pair RatePair) (money.Rate, bool) {
	r, ok := t[pair.String()]
	return r, ok
}

// PlanConversions lists the rate pairs needed to bring every record into
// the target currency: one pair per distinct non-target currency, in
// order of first occurrence.
func PlanConversions(records []models.PayRecord, target string) []RatePair {
	var pairs []RatePair
	for _, currency := range Currencies(records) {
		if currency != target {
			pairs = append(pairs, RatePair{Source: currency, Target: target})
		}
	}
	return pairs
}

// Normalize returns a copy of the records with every value converted to
// the target currency using the supplied rates. The input records are
// not modified. A record whose currency has no rate yields
// ErrMissingRate.
func Normalize(records []models.PayRecord, rates RateTable, target string) ([]models.PayRecord, error) {
	out := make([]models.PayRecord, len(records))
	for i, r := range records {
		if r.Currency != target {
			rate, ok := rates.Rate(RatePair{Source: r.Currency, Target: target})
			if !ok {
				return nil, fmt.Errorf("%w for %s_%s", ErrMissingRate, r.Currency, target)
			}
			r.Value = rate.Apply(r.Value)
			r.Currency = target
		}
		out[i] = r
	}
	return out, nil
}
