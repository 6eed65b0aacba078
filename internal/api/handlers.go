package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
)

// contextFromRequest parses the chat and thread path variables. A
// thread_id of 0 addresses the bare chat.
func contextFromRequest(r *http.Request) (models.Context, error) {
	vars := mux.Vars(r)
	chatID, err := strconv.ParseInt(vars["chat_id"], 10, 64)
	if err != nil {
		return models.Context{}, errors.New("invalid chat_id")
	}
	threadID, err := strconv.ParseInt(vars["thread_id"], 10, 64)
	if err != nil {
		return models.Context{}, errors.New("invalid thread_id")
	}
	return models.Context{ChatID: chatID, ThreadID: threadID}, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

type accountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   int64  `json:"created_at"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		CreatedAt:   a.CreatedAt,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	account, token, err := a.authSvc.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"account": toAccountResponse(account),
		"token":   token,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	account, token, err := a.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": toAccountResponse(account),
		"token":   token,
	})
}

func (a *API) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		UserID int64  `json:"user_id"`
		Name   string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := a.ledger.RegisterUser(r.Context(), c, req.UserID, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": req.UserID,
		"name":    req.Name,
	})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	users, err := a.ledger.Users(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}

	type userResponse struct {
		UserID int64  `json:"user_id"`
		Name   string `json:"name"`
	}
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = userResponse{UserID: u.ID, Name: u.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

// paymentRequest is the wire shape of a recorded payment. Amounts are
// decimal strings; kind selects which payee fields apply.
type paymentRequest struct {
	PayerID     int64             `json:"payer_id"`
	Kind        string            `json:"kind"`
	PayeeID     int64             `json:"payee_id,omitempty"`
	Allocations map[string]string `json:"allocations,omitempty"`
	Currency    string            `json:"currency"`
	Total       string            `json:"total"`
	Description string            `json:"description,omitempty"`
}

func (req *paymentRequest) split() (models.SplitSpec, error) {
	switch req.Kind {
	case "direct":
		return models.Direct(req.PayeeID), nil
	case "equal":
		return models.Equal(), nil
	case "itemized":
		allocations := make(map[int64]money.Amount, len(req.Allocations))
		for user, amount := range req.Allocations {
			userID, err := strconv.ParseInt(user, 10, 64)
			if err != nil {
				return models.SplitSpec{}, errors.New("allocation keys must be user IDs")
			}
			value, err := money.ParseAmount(amount)
			if err != nil {
				return models.SplitSpec{}, err
			}
			allocations[userID] = value
		}
		return models.Itemized(allocations), nil
	default:
		return models.SplitSpec{}, errors.New("kind must be direct, equal or itemized")
	}
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	split, err := req.split()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	total, err := money.ParseAmount(req.Total)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	count, err := a.ledger.RecordPayment(r.Context(), c, req.PayerID, split, req.Currency, total, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"records_created": count})
}

func (a *API) handleUndo(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	deleted, err := a.ledger.Undo(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// balanceEntry is one user's net in one currency.
type balanceEntry struct {
	UserID   int64  `json:"user_id"`
	Name     string `json:"name,omitempty"`
	Currency string `json:"currency"`
	Net      string `json:"net"`
}

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	sheet, err := a.ledger.Balances(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}

	var entries []balanceEntry
	for userID, byCurrency := range sheet.Net {
		for currency, net := range byCurrency {
			entries = append(entries, balanceEntry{
				UserID:   userID,
				Name:     sheet.Names[userID],
				Currency: currency,
				Net:      net.String(),
			})
		}
	}
	// Map iteration order is random; sort for a stable response.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UserID != entries[j].UserID {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].Currency < entries[j].Currency
	})
	writeJSON(w, http.StatusOK, map[string]any{"balances": entries})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	records, err := a.ledger.History(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}

	type historyEntry struct {
		RecordID   int64  `json:"record_id"`
		GroupID    int64  `json:"group_id"`
		GroupName  string `json:"group_name"`
		FromUserID int64  `json:"from_user_id"`
		ToUserID   int64  `json:"to_user_id"`
		Currency   string `json:"currency"`
		Value      string `json:"value"`
		CreatedAt  int64  `json:"created_at"`
	}
	out := make([]historyEntry, len(records))
	for i, rec := range records {
		out[i] = historyEntry{
			RecordID:   rec.Record.ID,
			GroupID:    rec.GroupID,
			GroupName:  rec.GroupName,
			FromUserID: rec.Record.FromUserID,
			ToUserID:   rec.Record.ToUserID,
			Currency:   rec.Record.Currency,
			Value:      rec.Record.Value.String(),
			CreatedAt:  rec.Record.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

type ratePairResponse struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (a *API) handleBeginSettlement(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		ActorID int64  `json:"actor_id"`
		Target  string `json:"target"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	pending, err := a.ledger.BeginSettlement(r.Context(), c, req.ActorID, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ratePairResponse, len(pending))
	for i, p := range pending {
		out[i] = ratePairResponse{Source: p.Source, Target: p.Target}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"pending_pairs": out})
}

// actorID reads the actor_id query parameter of session lookups.
func actorID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	if err != nil {
		return 0, errors.New("actor_id query parameter required")
	}
	return id, nil
}

func (a *API) handleNextRatePair(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	actor, err := actorID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	pair, ok, err := a.ledger.NextRatePair(c, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready": false,
		"next":  ratePairResponse{Source: pair.Source, Target: pair.Target},
	})
}

func (a *API) handleSupplyRate(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		ActorID int64  `json:"actor_id"`
		Source  string `json:"source"`
		Rate    string `json:"rate"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	rate, err := money.ParseRate(req.Rate)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	next, more, err := a.ledger.SupplyRate(c, req.ActorID, req.Source, rate)
	if err != nil {
		writeError(w, err)
		return
	}
	if !more {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready": false,
		"next":  ratePairResponse{Source: next.Source, Target: next.Target},
	})
}

func (a *API) handleCompleteSettlement(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		ActorID int64 `json:"actor_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	plan, err := a.ledger.CompleteSettlement(r.Context(), c, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}

	type transferResponse struct {
		FromUserID int64  `json:"from_user_id"`
		ToUserID   int64  `json:"to_user_id"`
		Amount     string `json:"amount"`
		Currency   string `json:"currency"`
	}
	out := make([]transferResponse, len(plan))
	for i, tr := range plan {
		out[i] = transferResponse{
			FromUserID: tr.FromUserID,
			ToUserID:   tr.ToUserID,
			Amount:     tr.Amount.String(),
			Currency:   tr.Currency,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settled":   len(out) == 0,
		"transfers": out,
	})
}

func (a *API) handleCancelSettlement(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	actor, err := actorID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	a.ledger.CancelSettlement(c, actor)
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (a *API) handleBeginAllocation(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		ActorID     int64  `json:"actor_id"`
		Total       string `json:"total"`
		Currency    string `json:"currency"`
		Description string `json:"description,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	total, err := money.ParseAmount(req.Total)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := a.ledger.BeginAllocation(c, req.ActorID, total, req.Currency, req.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"total": total.String()})
}

func (a *API) handleAllocate(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		ActorID int64  `json:"actor_id"`
		UserID  int64  `json:"user_id"`
		Amount  string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	remaining, err := a.ledger.Allocate(c, req.ActorID, req.UserID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"remaining": remaining.String()})
}

func (a *API) handleFinalizeAllocation(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req struct {
		ActorID int64 `json:"actor_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	count, err := a.ledger.FinalizeAllocation(r.Context(), c, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"records_created": count})
}

func (a *API) handleCancelAllocation(w http.ResponseWriter, r *http.Request) {
	c, err := contextFromRequest(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	actor, err := actorID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	a.ledger.CancelAllocation(c, actor)
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}
