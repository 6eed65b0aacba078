// Package ledger implements the balance aggregation, currency
// normalization and debt simplification algorithms of the engine.
// Everything here is a pure function over obligation slices; persistence
// and sessions live elsewhere.
package ledger

import (
	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
)

// Balances maps user ID -> currency -> signed net amount.
// Positive means the user is owed money, negative means they owe.
type Balances map[int64]map[string]money.Amount

// Aggregate folds obligations into net balances per user and currency.
//
// For each record the payer's balance in the record currency goes up by
// the value and the payee's goes down, so over any record set the
// balances of a currency always sum to zero. Addition is commutative, so
// the result is independent of record order.
func Aggregate(records []models.PayRecord) Balances {
	balances := make(Balances)
	for _, r := range records {
		add(balances, r.FromUserID, r.Currency, r.Value)
		add(balances, r.ToUserID, r.Currency, -r.Value)
	}
	return balances
}

func add(b Balances, userID int64, currency string, v money.Amount) {
	byCurrency, ok := b[userID]
	if !ok {
		byCurrency = make(map[string]money.Amount)
		b[userID] = byCurrency
	}
	byCurrency[currency] += v
}

// Currencies returns the distinct currencies appearing in the records,
// in order of first occurrence.
func Currencies(records []models.PayRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Currency] {
			seen[r.Currency] = true
			out = append(out, r.Currency)
		}
	}
	return out
}

// Unsettled returns a copy of the balances with entries inside the
// settlement tolerance removed. Users left with no currencies are
// dropped entirely. Used for display; the simplifier does its own
// filtering on the raw balances.
func Unsettled(b Balances) Balances {
	out := make(Balances)
	for userID, byCurrency := range b {
		for currency, net := range byCurrency {
			if net.IsSettled() {
				continue
			}
			add(out, userID, currency, net)
		}
	}
	return out
}
