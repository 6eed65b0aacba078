package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tallybot/tallybot/internal/ledger"
	"github.com/tallybot/tallybot/internal/metrics"
	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
	"github.com/tallybot/tallybot/internal/session"
	"github.com/tallybot/tallybot/internal/storage/sqlite"
)

var testCurrencies = []string{"USD", "EUR", "SGD"}

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewLedgerService(store, session.NewManager(0), metrics.NewNop(), testCurrencies)
}

func registerUsers(t *testing.T, svc *LedgerService, c models.Context, users map[int64]string) {
	t.Helper()
	for id, name := range users {
		if err := svc.RegisterUser(context.Background(), c, id, name); err != nil {
			t.Fatalf("RegisterUser(%d, %q) failed: %v", id, name, err)
		}
	}
}

func cents(v int64) money.Amount { return money.Amount(v) }

func TestRegisterUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 1}

	tests := []struct {
		name     string
		userID   int64
		userName string
		wantCode Code
		wantErr  error
	}{
		{name: "valid", userID: 1, userName: "Alice"},
		{name: "with space", userID: 2, userName: "Bob Smith"},
		{name: "rename same user", userID: 1, userName: "Alicia"},
		{name: "duplicate name", userID: 3, userName: "alicia", wantCode: CodeFailedPrecondition, wantErr: ErrNameTaken},
		{name: "too short", userID: 4, userName: "A", wantCode: CodeInvalidArgument},
		{name: "too long", userID: 4, userName: "Abcdefghijklmnopqrstu", wantCode: CodeInvalidArgument},
		{name: "digits rejected", userID: 5, userName: "Agent47", wantCode: CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RegisterUser(ctx, c, tt.userID, tt.userName)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if CodeOf(err) != tt.wantCode {
				t.Fatalf("code: expected %s, got %v", tt.wantCode, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegisterUserScopedToContext(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, models.Context{ChatID: 1}, 1, "Alice"); err != nil {
		t.Fatalf("register in chat 1: %v", err)
	}
	// Same name in a different chat is fine.
	if err := svc.RegisterUser(ctx, models.Context{ChatID: 2}, 2, "Alice"); err != nil {
		t.Fatalf("register in chat 2: %v", err)
	}
}

func TestRecordPaymentDirect(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 10}

	count, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "USD", cents(3000), "lunch")
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}

	sheet, err := svc.Balances(ctx, c)
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}
	if got := sheet.Net[1]["USD"]; got != cents(3000) {
		t.Errorf("payer net: expected 30.00, got %s", got)
	}
	if got := sheet.Net[2]["USD"]; got != cents(-3000) {
		t.Errorf("payee net: expected -30.00, got %s", got)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 11}

	tests := []struct {
		name     string
		split    models.SplitSpec
		currency string
		total    money.Amount
		wantCode Code
		wantErr  error
	}{
		{name: "unknown currency", split: models.Direct(2), currency: "XYZ", total: cents(100), wantCode: CodeInvalidArgument, wantErr: ErrUnknownCurrency},
		{name: "zero total", split: models.Direct(2), currency: "USD", total: 0, wantCode: CodeInvalidArgument},
		{name: "negative total", split: models.Direct(2), currency: "USD", total: cents(-100), wantCode: CodeInvalidArgument},
		{name: "self payment", split: models.Direct(1), currency: "USD", total: cents(100), wantCode: CodeFailedPrecondition, wantErr: ErrNothingToRecord},
		{name: "equal split no users", split: models.Equal(), currency: "USD", total: cents(100), wantCode: CodeFailedPrecondition, wantErr: ErrNotEnoughUsers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, c, 1, tt.split, tt.currency, tt.total, "")
			if err == nil {
				t.Fatal("expected error")
			}
			if CodeOf(err) != tt.wantCode {
				t.Errorf("code: expected %s, got %s", tt.wantCode, CodeOf(err))
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRecordPaymentEqualSplit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 12}
	registerUsers(t, svc, c, map[int64]string{1: "Paula", 2: "Xavier", 3: "Yara"})

	// 60.00 across 3 users: 20.00 per head, payer share suppressed.
	count, err := svc.RecordPayment(ctx, c, 1, models.Equal(), "USD", cents(6000), "dinner")
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 records, got %d", count)
	}

	sheet, err := svc.Balances(ctx, c)
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}
	if got := sheet.Net[1]["USD"]; got != cents(4000) {
		t.Errorf("payer net: expected 40.00, got %s", got)
	}
	for _, debtor := range []int64{2, 3} {
		if got := sheet.Net[debtor]["USD"]; got != cents(-2000) {
			t.Errorf("user %d net: expected -20.00, got %s", debtor, got)
		}
	}
	if got := sheet.Names[1]; got != "Paula" {
		t.Errorf("name: expected Paula, got %q", got)
	}
}

func TestRecordPaymentItemized(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 13}

	// Payer's own entry is filtered out.
	split := models.Itemized(map[int64]money.Amount{
		1: cents(500),
		2: cents(1200),
		3: cents(800),
	})
	count, err := svc.RecordPayment(ctx, c, 1, split, "USD", cents(2500), "groceries")
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 records, got %d", count)
	}

	sheet, err := svc.Balances(ctx, c)
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}
	if got := sheet.Net[1]["USD"]; got != cents(2000) {
		t.Errorf("payer net: expected 20.00, got %s", got)
	}
}

func TestUndo(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 14}

	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "USD", cents(1000), "first"); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "USD", cents(2000), "second"); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	deleted, err := svc.Undo(ctx, c)
	if err != nil || !deleted {
		t.Fatalf("first undo: deleted=%v err=%v", deleted, err)
	}

	sheet, err := svc.Balances(ctx, c)
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}
	if got := sheet.Net[2]["USD"]; got != cents(-1000) {
		t.Errorf("after undo: expected -10.00, got %s", got)
	}

	// Undo past the beginning reports nothing to do, not an error.
	deleted, err = svc.Undo(ctx, c)
	if err != nil || !deleted {
		t.Fatalf("second undo: deleted=%v err=%v", deleted, err)
	}
	deleted, err = svc.Undo(ctx, c)
	if err != nil {
		t.Fatalf("third undo errored: %v", err)
	}
	if deleted {
		t.Error("third undo: expected deleted=false on empty ledger")
	}
}

func TestBalancesEmpty(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Balances(context.Background(), models.Context{ChatID: 99})
	if !errors.Is(err, ErrNoObligations) {
		t.Fatalf("expected ErrNoObligations, got %v", err)
	}
	if CodeOf(err) != CodeFailedPrecondition {
		t.Errorf("expected failed_precondition, got %s", CodeOf(err))
	}
}

func TestHistory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 15}

	records, err := svc.History(ctx, c)
	if err != nil {
		t.Fatalf("History on empty ledger failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %d records", len(records))
	}

	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "USD", cents(1500), "taxi"); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	records, err = svc.History(ctx, c)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].GroupName != "taxi" {
		t.Errorf("group name: expected taxi, got %q", records[0].GroupName)
	}
}

func TestSettlementSingleCurrency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 20}

	// A owes B 30, A owes C 30: the plan needs two transfers from A.
	if _, err := svc.RecordPayment(ctx, c, 2, models.Direct(1), "USD", cents(3000), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, c, 3, models.Direct(1), "USD", cents(3000), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	pending, err := svc.BeginSettlement(ctx, c, 1, "USD")
	if err != nil {
		t.Fatalf("BeginSettlement failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("single currency: expected no pending pairs, got %v", pending)
	}

	plan, err := svc.CompleteSettlement(ctx, c, 1)
	if err != nil {
		t.Fatalf("CompleteSettlement failed: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 transfers, got %d: %v", len(plan), plan)
	}
	for _, tr := range plan {
		if tr.FromUserID != 1 {
			t.Errorf("expected user 1 to pay, got transfer %+v", tr)
		}
		if tr.Amount != cents(3000) {
			t.Errorf("expected 30.00 per transfer, got %s", tr.Amount)
		}
	}
}

func TestSettlementCrossCurrency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 21}

	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "EUR", cents(1000), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	pending, err := svc.BeginSettlement(ctx, c, 1, "USD")
	if err != nil {
		t.Fatalf("BeginSettlement failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Source != "EUR" {
		t.Fatalf("expected pending EUR_USD, got %v", pending)
	}

	// Completing while the rate is outstanding must be refused.
	if _, err := svc.CompleteSettlement(ctx, c, 1); CodeOf(err) != CodeFailedPrecondition {
		t.Fatalf("expected failed_precondition while rates pending, got %v", err)
	}

	rate, err := money.ParseRate("1.10")
	if err != nil {
		t.Fatalf("ParseRate failed: %v", err)
	}
	if _, _, err := svc.SupplyRate(c, 1, "EUR", rate); err != nil {
		t.Fatalf("SupplyRate failed: %v", err)
	}

	plan, err := svc.CompleteSettlement(ctx, c, 1)
	if err != nil {
		t.Fatalf("CompleteSettlement failed: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("expected 1 transfer, got %v", plan)
	}
	// 10.00 EUR at 1.10 = 11.00 USD, owed by user 2 to user 1.
	tr := plan[0]
	if tr.FromUserID != 2 || tr.ToUserID != 1 || tr.Currency != "USD" || tr.Amount != cents(1100) {
		t.Errorf("unexpected transfer %+v", tr)
	}
}

func TestSettlementWrongPairRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 22}

	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "EUR", cents(1000), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if _, err := svc.BeginSettlement(ctx, c, 1, "USD"); err != nil {
		t.Fatalf("BeginSettlement failed: %v", err)
	}

	rate, _ := money.ParseRate("4.4")
	if _, _, err := svc.SupplyRate(c, 1, "SGD", rate); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("expected invalid_argument for wrong source, got %v", err)
	}

	// The queue is untouched; the right pair still completes the run.
	pair, ok, err := svc.NextRatePair(c, 1)
	if err != nil || !ok {
		t.Fatalf("NextRatePair: ok=%v err=%v", ok, err)
	}
	if pair.Source != "EUR" {
		t.Fatalf("expected EUR still pending, got %v", pair)
	}
}

func TestSettlementFullySettled(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 23}

	// Two exactly offsetting obligations.
	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "USD", cents(2500), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, c, 2, models.Direct(1), "USD", cents(2500), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	if _, err := svc.BeginSettlement(ctx, c, 1, "USD"); err != nil {
		t.Fatalf("BeginSettlement failed: %v", err)
	}
	plan, err := svc.CompleteSettlement(ctx, c, 1)
	if err != nil {
		t.Fatalf("CompleteSettlement failed: %v", err)
	}
	if len(plan) != 0 {
		t.Errorf("expected empty plan when settled, got %v", plan)
	}
}

func TestSettlementNoSession(t *testing.T) {
	svc := newTestService(t)
	c := models.Context{ChatID: 24}

	if _, err := svc.CompleteSettlement(context.Background(), c, 1); CodeOf(err) != CodeNotFound {
		t.Fatalf("expected not_found without a session, got %v", err)
	}
	if _, _, err := svc.NextRatePair(c, 1); CodeOf(err) != CodeNotFound {
		t.Fatalf("expected not_found without a session, got %v", err)
	}
}

func TestSettlementRatesNotCached(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 25}

	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "EUR", cents(1000), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	rate, _ := money.ParseRate("1.10")
	if _, err := svc.BeginSettlement(ctx, c, 1, "USD"); err != nil {
		t.Fatalf("BeginSettlement failed: %v", err)
	}
	if _, _, err := svc.SupplyRate(c, 1, "EUR", rate); err != nil {
		t.Fatalf("SupplyRate failed: %v", err)
	}
	if _, err := svc.CompleteSettlement(ctx, c, 1); err != nil {
		t.Fatalf("CompleteSettlement failed: %v", err)
	}

	// A second run must re-collect the same pair.
	pending, err := svc.BeginSettlement(ctx, c, 1, "USD")
	if err != nil {
		t.Fatalf("second BeginSettlement failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Source != "EUR" {
		t.Errorf("expected EUR rate to be re-collected, got %v", pending)
	}
}

func TestAllocationFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 30}

	if err := svc.BeginAllocation(c, 1, cents(2500), "USD", "groceries"); err != nil {
		t.Fatalf("BeginAllocation failed: %v", err)
	}

	remaining, err := svc.Allocate(c, 1, 2, cents(1200))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if remaining != cents(1300) {
		t.Errorf("remaining: expected 13.00, got %s", remaining)
	}
	if _, err := svc.Allocate(c, 1, 3, cents(800)); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	// The 5.00 shortfall becomes the payer's own share, so only two
	// obligations are written.
	count, err := svc.FinalizeAllocation(ctx, c, 1)
	if err != nil {
		t.Fatalf("FinalizeAllocation failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 records, got %d", count)
	}

	sheet, err := svc.Balances(ctx, c)
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}
	if got := sheet.Net[1]["USD"]; got != cents(2000) {
		t.Errorf("payer net: expected 20.00, got %s", got)
	}

	// The session is gone after a successful finalize.
	if _, err := svc.Allocate(c, 1, 2, cents(100)); CodeOf(err) != CodeNotFound {
		t.Fatalf("expected not_found after finalize, got %v", err)
	}
}

func TestAllocationOverflowRetry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 31}

	if err := svc.BeginAllocation(c, 1, cents(1000), "USD", "snacks"); err != nil {
		t.Fatalf("BeginAllocation failed: %v", err)
	}
	if _, err := svc.Allocate(c, 1, 2, cents(1100)); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	// 11.00 against a 10.00 total exceeds the tolerance; the session
	// must survive the rejection.
	if _, err := svc.FinalizeAllocation(ctx, c, 1); !errors.Is(err, session.ErrAllocationOverflow) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}

	if _, err := svc.Allocate(c, 1, 2, cents(1000)); err != nil {
		t.Fatalf("Allocate after overflow failed: %v", err)
	}
	count, err := svc.FinalizeAllocation(ctx, c, 1)
	if err != nil {
		t.Fatalf("FinalizeAllocation after fix failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}
}

func TestAllocationWithinTolerance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 32}

	if err := svc.BeginAllocation(c, 1, cents(1000), "USD", ""); err != nil {
		t.Fatalf("BeginAllocation failed: %v", err)
	}
	// 10.04 against 10.00 is inside the tolerance and finalizes as-is.
	if _, err := svc.Allocate(c, 1, 2, cents(1004)); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	count, err := svc.FinalizeAllocation(ctx, c, 1)
	if err != nil {
		t.Fatalf("FinalizeAllocation failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}
}

func TestCancelFlows(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 33}

	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "EUR", cents(1000), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if _, err := svc.BeginSettlement(ctx, c, 1, "USD"); err != nil {
		t.Fatalf("BeginSettlement failed: %v", err)
	}
	svc.CancelSettlement(c, 1)
	if _, err := svc.CompleteSettlement(ctx, c, 1); CodeOf(err) != CodeNotFound {
		t.Fatalf("expected not_found after cancel, got %v", err)
	}

	if err := svc.BeginAllocation(c, 1, cents(1000), "USD", ""); err != nil {
		t.Fatalf("BeginAllocation failed: %v", err)
	}
	svc.CancelAllocation(c, 1)
	if _, err := svc.Allocate(c, 1, 2, cents(100)); CodeOf(err) != CodeNotFound {
		t.Fatalf("expected not_found after cancel, got %v", err)
	}
}

func TestSettlementPerActor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := models.Context{ChatID: 34}

	if _, err := svc.RecordPayment(ctx, c, 1, models.Direct(2), "EUR", cents(1000), ""); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	// Two actors in the same chat run independent settlements.
	if _, err := svc.BeginSettlement(ctx, c, 1, "USD"); err != nil {
		t.Fatalf("BeginSettlement actor 1 failed: %v", err)
	}
	if _, err := svc.BeginSettlement(ctx, c, 2, "USD"); err != nil {
		t.Fatalf("BeginSettlement actor 2 failed: %v", err)
	}

	rate, _ := money.ParseRate("1.10")
	if _, _, err := svc.SupplyRate(c, 1, "EUR", rate); err != nil {
		t.Fatalf("SupplyRate actor 1 failed: %v", err)
	}
	if _, err := svc.CompleteSettlement(ctx, c, 1); err != nil {
		t.Fatalf("CompleteSettlement actor 1 failed: %v", err)
	}

	// Actor 2's queue is untouched by actor 1's run.
	pair, ok, err := svc.NextRatePair(c, 2)
	if err != nil || !ok {
		t.Fatalf("NextRatePair actor 2: ok=%v err=%v", ok, err)
	}
	if (pair != ledger.RatePair{Source: "EUR", Target: "USD"}) {
		t.Errorf("actor 2 pending pair: got %v", pair)
	}
}
