package ledger

import (
	"testing"

	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
)

func usd(cents int64) money.Amount { return money.Amount(cents) }

func record(from, to int64, currency string, cents int64) models.PayRecord {
	return models.PayRecord{
		FromUserID: from,
		ToUserID:   to,
		Currency:   currency,
		Value:      money.Amount(cents),
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		records  []models.PayRecord
		validate func(t *testing.T, b Balances)
	}{
		{
			name:    "empty input",
			records: nil,
			validate: func(t *testing.T, b Balances) {
				if len(b) != 0 {
					t.Errorf("expected empty balances, got %v", b)
				}
			},
		},
		{
			name: "two debtors one creditor",
			records: []models.PayRecord{
				record(1, 2, "USD", 3000), // A paid 30 for B
				record(3, 2, "USD", 3000), // C paid 30 for B
			},
			validate: func(t *testing.T, b Balances) {
				if got := b[1]["USD"]; got != 3000 {
					t.Errorf("A net = %d, want 3000", got)
				}
				if got := b[2]["USD"]; got != -6000 {
					t.Errorf("B net = %d, want -6000", got)
				}
				if got := b[3]["USD"]; got != 3000 {
					t.Errorf("C net = %d, want 3000", got)
				}
			},
		},
		{
			name: "opposing records cancel",
			records: []models.PayRecord{
				record(1, 2, "USD", 1500),
				record(2, 1, "USD", 1500),
			},
			validate: func(t *testing.T, b Balances) {
				if got := b[1]["USD"]; got != 0 {
					t.Errorf("user 1 net = %d, want 0", got)
				}
				if got := b[2]["USD"]; got != 0 {
					t.Errorf("user 2 net = %d, want 0", got)
				}
			},
		},
		{
			name: "currencies tracked independently",
			records: []models.PayRecord{
				record(1, 2, "USD", 1000),
				record(1, 2, "EUR", 2000),
			},
			validate: func(t *testing.T, b Balances) {
				if got := b[1]["USD"]; got != 1000 {
					t.Errorf("USD net = %d, want 1000", got)
				}
				if got := b[1]["EUR"]; got != 2000 {
					t.Errorf("EUR net = %d, want 2000", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Aggregate(tt.records)
			tt.validate(t, b)
			assertConservation(t, b)
		})
	}
}

// assertConservation checks that balances sum to zero per currency.
func assertConservation(t *testing.T, b Balances) {
	t.Helper()
	sums := make(map[string]money.Amount)
	for _, currencies := range b {
		for currency, net := range currencies {
			sums[currency] += net
		}
	}
	for currency, sum := range sums {
		if !sum.IsSettled() {
			t.Errorf("conservation violated for %s: sum = %d", currency, sum)
		}
	}
}

func TestCurrencies(t *testing.T) {
	records := []models.PayRecord{
		record(1, 2, "EUR", 100),
		record(1, 2, "USD", 100),
		record(1, 2, "EUR", 100),
		record(1, 2, "SGD", 100),
	}
	got := Currencies(records)
	want := []string{"EUR", "USD", "SGD"}
	if len(got) != len(want) {
		t.Fatalf("Currencies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Currencies[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestUnsettled(t *testing.T) {
	b := Balances{
		1: {"USD": usd(3000), "EUR": usd(0)},
		2: {"USD": usd(-3000)},
		3: {"EUR": usd(0)},
	}
	got := Unsettled(b)
	if len(got) != 2 {
		t.Fatalf("expected 2 users with balances, got %d", len(got))
	}
	if _, ok := got[3]; ok {
		t.Error("fully settled user should be dropped")
	}
	if _, ok := got[1]["EUR"]; ok {
		t.Error("settled currency entry should be dropped")
	}
}
