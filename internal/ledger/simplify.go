package ledger

import (
	"sort"

	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
)

// party is one user's working balance during the simplification walk.
type party struct {
	userID int64
	net    money.Amount
}

// Simplify computes a minimal set of transfers that re-zeroes the net
// balances, handling each currency independently. currencyOrder fixes
// the grouping order of the output (normally the first-encounter order
// of currencies in the underlying records); currencies not present in
// the balances are skipped.
//
// Per currency the algorithm is greedy largest-vs-largest matching:
// debtors sorted most negative first, creditors largest credit first,
// then a two-cursor walk transferring min(|debt|, credit) at each step.
// The greedy pairing is a heuristic for minimizing transfer count, not
// a guaranteed optimum, and emits at most debtors+creditors-1 transfers
// per currency.
//
// An empty result over a non-empty record set means everyone is already
// settled; callers distinguish that from having no records at all.
func Simplify(balances Balances, currencyOrder []string) []models.Transfer {
	byCurrency := make(map[string]map[int64]money.Amount)
	for userID, currencies := range balances {
		for currency, net := range currencies {
			if byCurrency[currency] == nil {
				byCurrency[currency] = make(map[int64]money.Amount)
			}
			byCurrency[currency][userID] = net
		}
	}

	var plan []models.Transfer
	for _, currency := range currencyOrder {
		userBalances, ok := byCurrency[currency]
		if !ok {
			continue
		}
		plan = append(plan, simplifyCurrency(currency, userBalances)...)
	}
	return plan
}

func simplifyCurrency(currency string, userBalances map[int64]money.Amount) []models.Transfer {
	var debtors, creditors []party
	for userID, net := range userBalances {
		if net.IsSettled() {
			continue
		}
		if net < 0 {
			debtors = append(debtors, party{userID: userID, net: net})
		} else {
			creditors = append(creditors, party{userID: userID, net: net})
		}
	}

	// Most negative debt first, largest credit first. Map iteration is
	// unordered, so ties break on user ID to keep runs deterministic.
	sort.Slice(debtors, func(i, j int) bool {
		if debtors[i].net != debtors[j].net {
			return debtors[i].net < debtors[j].net
		}
		return debtors[i].userID < debtors[j].userID
	})
	sort.Slice(creditors, func(i, j int) bool {
		if creditors[i].net != creditors[j].net {
			return creditors[i].net > creditors[j].net
		}
		return creditors[i].userID < creditors[j].userID
	})

	var transfers []models.Transfer
	d, c := 0, 0
	for d < len(debtors) && c < len(creditors) {
		debtor := &debtors[d]
		creditor := &creditors[c]

		amount := -debtor.net
		if creditor.net < amount {
			amount = creditor.net
		}

		if amount > 0 {
			transfers = append(transfers, models.Transfer{
				FromUserID: debtor.userID,
				ToUserID:   creditor.userID,
				Amount:     amount,
				Currency:   currency,
			})
		}

		debtor.net += amount
		creditor.net -= amount

		// Both cursors can advance in the same step when debt and
		// credit matched exactly.
		if debtor.net.Abs() < money.Epsilon {
			d++
		}
		if creditor.net < money.Epsilon {
			c++
		}
	}

	return transfers
}
