package ledger

import (
	"testing"

	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
)

func TestSimplify(t *testing.T) {
	tests := []struct {
		name     string
		records  []models.PayRecord
		validate func(t *testing.T, plan []models.Transfer)
	}{
		{
			name: "single creditor two debtors",
			records: []models.PayRecord{
				record(2, 1, "USD", 3000), // B paid 30 for A
				record(2, 3, "USD", 3000), // B paid 30 for C
			},
			validate: func(t *testing.T, plan []models.Transfer) {
				if len(plan) != 2 {
					t.Fatalf("expected 2 transfers, got %d: %v", len(plan), plan)
				}
				for _, tr := range plan {
					if tr.ToUserID != 2 || tr.Amount != 3000 || tr.Currency != "USD" {
						t.Errorf("unexpected transfer %+v", tr)
					}
				}
				if plan[0].FromUserID == plan[1].FromUserID {
					t.Error("both transfers name the same debtor")
				}
			},
		},
		{
			name: "chain collapses to minimal transfers",
			records: []models.PayRecord{
				record(1, 2, "USD", 1000), // A is owed 10 by B
				record(2, 3, "USD", 1000), // B is owed 10 by C
			},
			validate: func(t *testing.T, plan []models.Transfer) {
				// A +10, B 0, C -10: one transfer C -> A.
				if len(plan) != 1 {
					t.Fatalf("expected 1 transfer, got %d: %v", len(plan), plan)
				}
				tr := plan[0]
				if tr.FromUserID != 3 || tr.ToUserID != 1 || tr.Amount != 1000 {
					t.Errorf("unexpected transfer %+v", tr)
				}
			},
		},
		{
			name: "largest debt pairs with largest credit",
			records: []models.PayRecord{
				record(1, 4, "USD", 5000), // A +50, D -50
				record(2, 5, "USD", 3000), // B +30, E -30
				record(3, 5, "USD", 1000), // C +10, E -40 total
			},
			validate: func(t *testing.T, plan []models.Transfer) {
				if len(plan) == 0 {
					t.Fatal("expected transfers")
				}
				// First transfer: biggest debtor (D, -50) pays biggest
				// creditor (A, +50).
				first := plan[0]
				if first.FromUserID != 4 || first.ToUserID != 1 || first.Amount != 5000 {
					t.Errorf("first transfer = %+v, want D pays A 50.00", first)
				}
			},
		},
		{
			name:    "no records",
			records: nil,
			validate: func(t *testing.T, plan []models.Transfer) {
				if len(plan) != 0 {
					t.Errorf("expected empty plan, got %v", plan)
				}
			},
		},
		{
			name: "fully settled ledger",
			records: []models.PayRecord{
				record(1, 2, "USD", 2500),
				record(2, 1, "USD", 2500),
			},
			validate: func(t *testing.T, plan []models.Transfer) {
				if len(plan) != 0 {
					t.Errorf("expected empty plan for settled ledger, got %v", plan)
				}
			},
		},
		{
			name: "currencies settled independently",
			records: []models.PayRecord{
				record(1, 2, "EUR", 1000),
				record(1, 2, "USD", 2000),
			},
			validate: func(t *testing.T, plan []models.Transfer) {
				if len(plan) != 2 {
					t.Fatalf("expected 2 transfers, got %d", len(plan))
				}
				// Output grouped by first-encounter currency order.
				if plan[0].Currency != "EUR" || plan[1].Currency != "USD" {
					t.Errorf("currency order = %s, %s; want EUR, USD", plan[0].Currency, plan[1].Currency)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances := Aggregate(tt.records)
			plan := Simplify(balances, Currencies(tt.records))
			tt.validate(t, plan)
			assertPlanSettles(t, balances, plan)
			assertTransferBound(t, balances, plan)
		})
	}
}

// assertPlanSettles applies the plan to the balances and checks every
// entry lands within the tolerance of zero.
func assertPlanSettles(t *testing.T, balances Balances, plan []models.Transfer) {
	t.Helper()
	working := make(map[int64]map[string]money.Amount)
	for userID, currencies := range balances {
		working[userID] = make(map[string]money.Amount, len(currencies))
		for currency, net := range currencies {
			working[userID][currency] = net
		}
	}
	for _, tr := range plan {
		working[tr.FromUserID][tr.Currency] += tr.Amount
		working[tr.ToUserID][tr.Currency] -= tr.Amount
	}
	for userID, currencies := range working {
		for currency, net := range currencies {
			if !net.IsSettled() {
				t.Errorf("user %d left with %s %s after plan", userID, net, currency)
			}
		}
	}
}

// assertTransferBound checks the plan never exceeds d+c-1 transfers per
// currency.
func assertTransferBound(t *testing.T, balances Balances, plan []models.Transfer) {
	t.Helper()
	debtors := make(map[string]int)
	creditors := make(map[string]int)
	for _, currencies := range balances {
		for currency, net := range currencies {
			if net.IsSettled() {
				continue
			}
			if net < 0 {
				debtors[currency]++
			} else {
				creditors[currency]++
			}
		}
	}
	counts := make(map[string]int)
	for _, tr := range plan {
		counts[tr.Currency]++
	}
	for currency, n := range counts {
		if bound := debtors[currency] + creditors[currency] - 1; n > bound {
			t.Errorf("%s plan has %d transfers, bound %d", currency, n, bound)
		}
	}
}

func TestSimplifyDeterministic(t *testing.T) {
	records := []models.PayRecord{
		record(1, 10, "USD", 2000),
		record(2, 10, "USD", 2000),
		record(3, 10, "USD", 2000),
	}
	balances := Aggregate(records)
	first := Simplify(balances, Currencies(records))
	for i := 0; i < 20; i++ {
		again := Simplify(Aggregate(records), Currencies(records))
		if len(again) != len(first) {
			t.Fatalf("plan length changed between runs")
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("plan differs between runs: %+v vs %+v", first[j], again[j])
			}
		}
	}
}
