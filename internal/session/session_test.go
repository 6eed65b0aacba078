package session

import (
	"errors"
	"testing"
	"time"

	"github.com/tallybot/tallybot/internal/ledger"
	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
)

func testKey() Key {
	return Key{Context: models.Context{ChatID: 100, ThreadID: 0}, ActorID: 7}
}

func TestSettlementRateQueue(t *testing.T) {
	s := NewSettlement("USD", []ledger.RatePair{
		{Source: "EUR", Target: "USD"},
		{Source: "THB", Target: "USD"},
	})

	if s.Ready() {
		t.Fatal("session with pending pairs reported ready")
	}
	if _, err := s.Rates(); !errors.Is(err, ErrRatesPending) {
		t.Fatalf("Rates() = %v, want ErrRatesPending", err)
	}

	pair, ok := s.Next()
	if !ok || pair.Source != "EUR" {
		t.Fatalf("Next = %v, %v; want EUR pair", pair, ok)
	}

	// A reply for the wrong pair is rejected.
	rate, _ := money.ParseRate("1.10")
	if err := s.SupplyRate("THB", rate); err == nil {
		t.Error("expected error supplying rate for wrong pair")
	}

	if err := s.SupplyRate("EUR", rate); err != nil {
		t.Fatalf("SupplyRate failed: %v", err)
	}
	pair, _ = s.Next()
	if pair.Source != "THB" {
		t.Errorf("queue head = %s, want THB", pair.Source)
	}

	thb, _ := money.ParseRate("0.027")
	if err := s.SupplyRate("THB", thb); err != nil {
		t.Fatalf("SupplyRate failed: %v", err)
	}

	if !s.Ready() {
		t.Fatal("session with empty queue not ready")
	}
	rates, err := s.Rates()
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if got, ok := rates.Rate(ledger.RatePair{Source: "EUR", Target: "USD"}); !ok || got != rate {
		t.Errorf("EUR rate = %v, %v", got, ok)
	}

	if err := s.SupplyRate("EUR", rate); err == nil {
		t.Error("expected error supplying rate with empty queue")
	}
}

func TestAllocationAccumulator(t *testing.T) {
	a := NewAllocation(1, 6000, "USD", "dinner")

	if err := a.Set(2, 2000); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := a.Set(3, 1500); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// Re-entry overwrites.
	if err := a.Set(3, 1000); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := a.Set(4, -100); err == nil {
		t.Error("expected error for negative allocation")
	}

	if got := a.Allocated(); got != 3000 {
		t.Errorf("Allocated = %d, want 3000", got)
	}
	if got := a.Remaining(); got != 3000 {
		t.Errorf("Remaining = %d, want 3000", got)
	}

	spec, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if spec.Kind != models.SplitItemized {
		t.Errorf("spec kind = %v, want itemized", spec.Kind)
	}
	// Shortfall of 30.00 is the payer's own share.
	if got := spec.Allocations[1]; got != 3000 {
		t.Errorf("payer share = %d, want 3000", got)
	}
	if got := spec.Allocations[2]; got != 2000 {
		t.Errorf("user 2 share = %d, want 2000", got)
	}
	if got := spec.Allocations[3]; got != 1000 {
		t.Errorf("user 3 share = %d, want 1000 (overwritten)", got)
	}
}

func TestAllocationOverflow(t *testing.T) {
	a := NewAllocation(1, 1000, "USD", "lunch")
	a.Set(2, 600)
	a.Set(3, 500)

	// 11.00 allocated against 10.00 total: beyond the 0.05 tolerance.
	if _, err := a.Finalize(); !errors.Is(err, ErrAllocationOverflow) {
		t.Fatalf("Finalize = %v, want ErrAllocationOverflow", err)
	}

	// Session stays usable: adjust and retry.
	a.Set(3, 400)
	spec, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize after retry failed: %v", err)
	}
	if _, ok := spec.Allocations[1]; ok {
		t.Error("no shortfall, payer should have no share")
	}
}

func TestAllocationWithinTolerance(t *testing.T) {
	a := NewAllocation(1, 1000, "USD", "lunch")
	a.Set(2, 1003) // 3 cents over, inside the 5 cent tolerance
	if _, err := a.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(DefaultTTL)
	key := testKey()

	if _, err := m.Settlement(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	m.BeginSettlement(key, NewSettlement("USD", nil))
	if _, err := m.Settlement(key); err != nil {
		t.Fatalf("Settlement lookup failed: %v", err)
	}

	// Sessions for other actors or contexts are independent.
	other := Key{Context: key.Context, ActorID: 8}
	if _, err := m.Settlement(other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other actor, got %v", err)
	}

	m.EndSettlement(key)
	if _, err := m.Settlement(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after end, got %v", err)
	}

	m.BeginAllocation(key, NewAllocation(1, 1000, "USD", "x"))
	if _, err := m.Allocation(key); err != nil {
		t.Fatalf("Allocation lookup failed: %v", err)
	}
	m.EndAllocation(key)
	if _, err := m.Allocation(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after end, got %v", err)
	}
}

func TestManagerExpiry(t *testing.T) {
	m := NewManager(time.Minute)
	current := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return current }

	key := testKey()
	m.BeginSettlement(key, NewSettlement("USD", nil))

	current = current.Add(30 * time.Second)
	if _, err := m.Settlement(key); err != nil {
		t.Fatalf("session expired too early: %v", err)
	}

	// Lookup refreshed the TTL; another 61 minutes kills it.
	current = current.Add(61 * time.Minute)
	if _, err := m.Settlement(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}
