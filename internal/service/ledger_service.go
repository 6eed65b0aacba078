// Package service implements the engine's operations on top of the
// storage, ledger and session layers. All user-facing validation lives
// here; the layers below assume clean input.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/tallybot/tallybot/internal/ledger"
	"github.com/tallybot/tallybot/internal/metrics"
	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
	"github.com/tallybot/tallybot/internal/session"
	"github.com/tallybot/tallybot/internal/storage"
)

// LedgerService is the transaction writer, balance reader and
// settlement orchestrator for one deployment. It is safe for concurrent
// use; per-interaction state lives in the session manager.
type LedgerService struct {
	store      storage.Store
	sessions   *session.Manager
	metrics    *metrics.Metrics
	currencies map[string]bool
}

// NewLedgerService creates the service. currencies is the catalogue of
// accepted currency codes; payments in any other currency are rejected.
func NewLedgerService(store storage.Store, sessions *session.Manager, m *metrics.Metrics, currencies []string) *LedgerService {
	catalogue := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		catalogue[strings.ToUpper(c)] = true
	}
	return &LedgerService{
		store:      store,
		sessions:   sessions,
		metrics:    m,
		currencies: catalogue,
	}
}

// BalanceSheet is the result of a balance query: per-user nets plus the
// display names of every user appearing in them.
type BalanceSheet struct {
	Net   ledger.Balances
	Names map[int64]string
}

// checkCurrency normalizes the code to upper case and rejects codes
// outside the catalogue.
func (s *LedgerService) checkCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if !s.currencies[code] {
		return "", newError(CodeInvalidArgument, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency))
	}
	return code, nil
}

// validateName enforces the display-name rules: 2 to 20 characters,
// letters and spaces only.
func validateName(name string) error {
	runes := []rune(name)
	if len(runes) < 2 || len(runes) > 20 {
		return invalidArgument("name must be 2-20 characters, got %d", len(runes))
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) && r != ' ' {
			return invalidArgument("name may contain only letters and spaces")
		}
	}
	return nil
}

// RegisterUser registers (or renames) a ledger participant in the
// context. The name must be unique within the context, compared
// case-insensitively; re-registering the same user ID overwrites their
// name and leaves their obligations intact.
func (s *LedgerService) RegisterUser(ctx context.Context, c models.Context, userID int64, name string) error {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return err
	}

	taken, err := s.store.UserNameExists(ctx, c, name, userID)
	if err != nil {
		return internalError(fmt.Errorf("checking name: %w", err))
	}
	if taken {
		return newError(CodeFailedPrecondition, ErrNameTaken)
	}

	if err := s.store.UpsertUser(ctx, &models.User{ID: userID, Context: c, Name: name}); err != nil {
		return internalError(fmt.Errorf("registering user: %w", err))
	}
	slog.Info("user registered", "context", c.String(), "user_id", userID, "name", name)
	return nil
}

// RecordPayment writes one payment as an atomic group of obligations and
// returns the number of records created. The split selects how the
// total is divided; shares resolving to the payer are never written.
func (s *LedgerService) RecordPayment(ctx context.Context, c models.Context, payerID int64, split models.SplitSpec, currency string, total money.Amount, description string) (int, error) {
	code, err := s.checkCurrency(currency)
	if err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, invalidArgument("total must be positive, got %s", total)
	}

	records, err := s.buildRecords(ctx, c, payerID, split, code, total)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, newError(CodeFailedPrecondition, ErrNothingToRecord)
	}

	groupName := strings.TrimSpace(description)
	if groupName == "" {
		groupName = split.Kind.String() + " payment"
	}

	groupID, err := s.store.AppendBatch(ctx, c, groupName, records)
	if err != nil {
		return 0, internalError(fmt.Errorf("writing payment: %w", err))
	}

	s.metrics.PaymentsRecorded.WithLabelValues(split.Kind.String()).Inc()
	s.metrics.RecordsCreated.Add(float64(len(records)))
	slog.Info("payment recorded",
		"context", c.String(),
		"group_id", groupID,
		"kind", split.Kind.String(),
		"payer_id", payerID,
		"currency", code,
		"total", total.String(),
		"records", len(records),
	)
	return len(records), nil
}

// buildRecords resolves a split spec into concrete obligations. Shares
// owed by the payer to themselves are dropped here, in every mode.
func (s *LedgerService) buildRecords(ctx context.Context, c models.Context, payerID int64, split models.SplitSpec, currency string, total money.Amount) ([]models.PayRecord, error) {
	switch split.Kind {
	case models.SplitDirect:
		if split.PayeeID == payerID {
			return nil, nil
		}
		return []models.PayRecord{{
			Context:    c,
			FromUserID: payerID,
			ToUserID:   split.PayeeID,
			Currency:   currency,
			Value:      total,
		}}, nil

	case models.SplitEqual:
		users, err := s.store.Users(ctx, c)
		if err != nil {
			return nil, internalError(fmt.Errorf("listing users: %w", err))
		}
		if len(users) < 2 {
			return nil, newError(CodeFailedPrecondition, ErrNotEnoughUsers)
		}
		share := total.Split(len(users))
		records := make([]models.PayRecord, 0, len(users)-1)
		for _, u := range users {
			if u.ID == payerID {
				continue
			}
			records = append(records, models.PayRecord{
				Context:    c,
				FromUserID: payerID,
				ToUserID:   u.ID,
				Currency:   currency,
				Value:      share,
			})
		}
		return records, nil

	case models.SplitItemized:
		// Sorted so record order, and therefore assigned IDs, are
		// deterministic.
		payees := make([]int64, 0, len(split.Allocations))
		for userID := range split.Allocations {
			payees = append(payees, userID)
		}
		sort.Slice(payees, func(i, j int) bool { return payees[i] < payees[j] })

		var records []models.PayRecord
		for _, userID := range payees {
			amount := split.Allocations[userID]
			if userID == payerID || amount <= 0 {
				continue
			}
			records = append(records, models.PayRecord{
				Context:    c,
				FromUserID: payerID,
				ToUserID:   userID,
				Currency:   currency,
				Value:      amount,
			})
		}
		return records, nil

	default:
		return nil, invalidArgument("unknown split kind %d", split.Kind)
	}
}

// Undo deletes the most recently created payment group in the context.
// It returns false when there is nothing to undo; a repeated undo after
// an empty ledger is not an error.
func (s *LedgerService) Undo(ctx context.Context, c models.Context) (bool, error) {
	deleted, err := s.store.DeleteLatestGroup(ctx, c)
	if err != nil {
		return false, internalError(fmt.Errorf("undoing: %w", err))
	}
	outcome := "deleted"
	if !deleted {
		outcome = "empty"
	}
	s.metrics.Undos.WithLabelValues(outcome).Inc()
	slog.Info("undo", "context", c.String(), "outcome", outcome)
	return deleted, nil
}

// Balances aggregates every obligation in the context into per-user
// per-currency nets, suppressing nets below the settlement threshold.
// Returns ErrNoObligations when the context has no records at all.
func (s *LedgerService) Balances(ctx context.Context, c models.Context) (*BalanceSheet, error) {
	records, err := s.store.Obligations(ctx, c)
	if err != nil {
		return nil, internalError(fmt.Errorf("reading obligations: %w", err))
	}
	if len(records) == 0 {
		return nil, newError(CodeFailedPrecondition, ErrNoObligations)
	}

	names, err := s.userNames(ctx, c)
	if err != nil {
		return nil, err
	}
	return &BalanceSheet{
		Net:   ledger.Unsettled(ledger.Aggregate(records)),
		Names: names,
	}, nil
}

// History lists every obligation in the context in creation order, each
// with its owning group. An empty ledger yields an empty list.
func (s *LedgerService) History(ctx context.Context, c models.Context) ([]storage.GroupedRecord, error) {
	records, err := s.store.GroupedObligations(ctx, c)
	if err != nil {
		return nil, internalError(fmt.Errorf("reading history: %w", err))
	}
	return records, nil
}

// Users lists the registered participants of the context.
func (s *LedgerService) Users(ctx context.Context, c models.Context) ([]models.User, error) {
	users, err := s.store.Users(ctx, c)
	if err != nil {
		return nil, internalError(fmt.Errorf("listing users: %w", err))
	}
	return users, nil
}

func (s *LedgerService) userNames(ctx context.Context, c models.Context) (map[int64]string, error) {
	users, err := s.store.Users(ctx, c)
	if err != nil {
		return nil, internalError(fmt.Errorf("listing users: %w", err))
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

// BeginSettlement starts a settlement run toward the target currency and
// returns the conversion pairs that still need a rate, in the order they
// will be asked. An empty list means the run can complete immediately.
func (s *LedgerService) BeginSettlement(ctx context.Context, c models.Context, actorID int64, target string) ([]ledger.RatePair, error) {
	code, err := s.checkCurrency(target)
	if err != nil {
		return nil, err
	}

	records, err := s.store.Obligations(ctx, c)
	if err != nil {
		return nil, internalError(fmt.Errorf("reading obligations: %w", err))
	}
	if len(records) == 0 {
		return nil, newError(CodeFailedPrecondition, ErrNoObligations)
	}

	pending := ledger.PlanConversions(records, code)
	key := session.Key{Context: c, ActorID: actorID}
	s.sessions.BeginSettlement(key, session.NewSettlement(code, pending))
	slog.Info("settlement started", "context", c.String(), "actor_id", actorID, "target", code, "pending_pairs", len(pending))
	return pending, nil
}

// NextRatePair returns the conversion pair the settlement run is
// currently waiting on. ok is false when every pair has a rate.
func (s *LedgerService) NextRatePair(c models.Context, actorID int64) (pair ledger.RatePair, ok bool, err error) {
	sess, err := s.settlement(c, actorID)
	if err != nil {
		return ledger.RatePair{}, false, err
	}
	pair, ok = sess.Next()
	return pair, ok, nil
}

// SupplyRate resolves the pending conversion pair for the given source
// currency and returns the next pair awaiting a rate, if any. The source
// must match the head of the queue.
func (s *LedgerService) SupplyRate(c models.Context, actorID int64, source string, rate money.Rate) (next ledger.RatePair, more bool, err error) {
	sess, err := s.settlement(c, actorID)
	if err != nil {
		return ledger.RatePair{}, false, err
	}
	if err := sess.SupplyRate(strings.ToUpper(strings.TrimSpace(source)), rate); err != nil {
		return ledger.RatePair{}, false, newError(CodeInvalidArgument, err)
	}
	next, more = sess.Next()
	return next, more, nil
}

// CancelSettlement abandons the settlement run, discarding any rates
// collected so far.
func (s *LedgerService) CancelSettlement(c models.Context, actorID int64) {
	s.sessions.EndSettlement(session.Key{Context: c, ActorID: actorID})
}

// CompleteSettlement computes the minimal transfer plan for the run. It
// refuses while conversion pairs are still pending. Obligations are
// re-read at completion time, so payments recorded mid-run are included.
// The session is discarded on success; rates never survive a run. An
// empty plan with a nil error means everyone is already settled.
func (s *LedgerService) CompleteSettlement(ctx context.Context, c models.Context, actorID int64) ([]models.Transfer, error) {
	key := session.Key{Context: c, ActorID: actorID}
	sess, err := s.settlement(c, actorID)
	if err != nil {
		return nil, err
	}

	rates, err := sess.Rates()
	if err != nil {
		return nil, newError(CodeFailedPrecondition, err)
	}

	records, err := s.store.Obligations(ctx, c)
	if err != nil {
		return nil, internalError(fmt.Errorf("reading obligations: %w", err))
	}
	if len(records) == 0 {
		s.sessions.EndSettlement(key)
		return nil, newError(CodeFailedPrecondition, ErrNoObligations)
	}

	normalized, err := ledger.Normalize(records, rates, sess.Target)
	if err != nil {
		// A currency recorded after the run began has no rate; the
		// caller must restart the run to collect it.
		return nil, newError(CodeFailedPrecondition, err)
	}

	balances := ledger.Unsettled(ledger.Aggregate(normalized))
	plan := ledger.Simplify(balances, []string{sess.Target})
	s.sessions.EndSettlement(key)

	s.metrics.SettlementsDone.Inc()
	s.metrics.TransfersPlanned.Add(float64(len(plan)))
	slog.Info("settlement completed",
		"context", c.String(),
		"actor_id", actorID,
		"target", sess.Target,
		"records", len(records),
		"transfers", len(plan),
	)
	return plan, nil
}

func (s *LedgerService) settlement(c models.Context, actorID int64) (*session.Settlement, error) {
	sess, err := s.sessions.Settlement(session.Key{Context: c, ActorID: actorID})
	if err != nil {
		return nil, newError(CodeNotFound, err)
	}
	return sess, nil
}

// BeginAllocation starts an itemized split: the actor paid total and
// will assign per-person shares before finalizing.
func (s *LedgerService) BeginAllocation(c models.Context, actorID int64, total money.Amount, currency, description string) error {
	code, err := s.checkCurrency(currency)
	if err != nil {
		return err
	}
	if total <= 0 {
		return invalidArgument("total must be positive, got %s", total)
	}
	key := session.Key{Context: c, ActorID: actorID}
	s.sessions.BeginAllocation(key, session.NewAllocation(actorID, total, code, description))
	slog.Info("allocation started", "context", c.String(), "actor_id", actorID, "currency", code, "total", total.String())
	return nil
}

// Allocate sets (or overwrites) one person's share of the running
// allocation and returns the still-unallocated remainder, which is
// negative when the entries overshoot the total.
func (s *LedgerService) Allocate(c models.Context, actorID, userID int64, amount money.Amount) (remaining money.Amount, err error) {
	alloc, err := s.allocation(c, actorID)
	if err != nil {
		return 0, err
	}
	if err := alloc.Set(userID, amount); err != nil {
		return 0, newError(CodeInvalidArgument, err)
	}
	return alloc.Remaining(), nil
}

// FinalizeAllocation validates the accumulated shares and records the
// payment. On overflow the session survives so entries can be adjusted
// and finalization retried; every other outcome ends the session.
func (s *LedgerService) FinalizeAllocation(ctx context.Context, c models.Context, actorID int64) (int, error) {
	key := session.Key{Context: c, ActorID: actorID}
	alloc, err := s.allocation(c, actorID)
	if err != nil {
		return 0, err
	}

	split, err := alloc.Finalize()
	if err != nil {
		if errors.Is(err, session.ErrAllocationOverflow) {
			return 0, newError(CodeFailedPrecondition, err)
		}
		return 0, internalError(err)
	}

	count, err := s.RecordPayment(ctx, c, alloc.PayerID, split, alloc.Currency, alloc.Total, alloc.Description)
	if err != nil {
		s.sessions.EndAllocation(key)
		return 0, err
	}
	s.sessions.EndAllocation(key)
	return count, nil
}

// CancelAllocation abandons the running allocation.
func (s *LedgerService) CancelAllocation(c models.Context, actorID int64) {
	s.sessions.EndAllocation(session.Key{Context: c, ActorID: actorID})
}

func (s *LedgerService) allocation(c models.Context, actorID int64) (*session.Allocation, error) {
	alloc, err := s.sessions.Allocation(session.Key{Context: c, ActorID: actorID})
	if err != nil {
		return nil, newError(CodeNotFound, err)
	}
	return alloc, nil
}
