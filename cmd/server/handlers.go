package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"settleup/internal/models"
	"settleup/internal/service"
)

type server struct {
	ledger *service.Ledger
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /v1/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PUT /v1/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /v1/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /v1/expenses/{id}/shares", s.handleDeriveShares)

	mux.HandleFunc("POST /v1/conversions", s.handleCreateConversion)
	mux.HandleFunc("PUT /v1/conversions/{id}", s.handleUpdateConversion)
	mux.HandleFunc("POST /v1/settlements", s.handleRecordSettlement)

	mux.HandleFunc("POST /v1/groups", s.handleCreateGroup)
	mux.HandleFunc("GET /v1/groups/{id}", s.handleGetGroup)
	mux.HandleFunc("POST /v1/groups/{id}/archive", s.handleArchiveGroup)
	mux.HandleFunc("GET /v1/groups/{id}/balances", s.handleGroupBalances)
	mux.HandleFunc("POST /v1/groups/{id}/recalculate", s.handleRecalculate)

	mux.HandleFunc("GET /v1/users/{id}/balances", s.handleUserBalances)
}

// actorID identifies the caller. Authentication happens upstream; the
// gateway forwards the verified identity in this header.
func actorID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (s *server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var exp models.Expense
	if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	created, err := s.ledger.CreateExpense(r.Context(), &exp, actorID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	exp, err := s.ledger.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var exp models.Expense
	if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	updated, err := s.ledger.UpdateExpense(r.Context(), r.PathValue("id"), &exp, actorID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteExpense(r.Context(), r.PathValue("id"), actorID(r)); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeriveShares(w http.ResponseWriter, r *http.Request) {
	shares, err := s.ledger.DeriveShares(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

type conversionRequest struct {
	DebtorID     string `json:"debtor_id"`
	CreditorID   string `json:"creditor_id"`
	Amount       int64  `json:"amount"`
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
	Rate         string `json:"rate"`
	GroupID      string `json:"group_id"`
}

type conversionResponse struct {
	Source *models.Expense `json:"source"`
	Target *models.Expense `json:"target"`
}

func (req *conversionRequest) legs() (*models.Expense, *models.Expense, error) {
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		return nil, nil, fmt.Errorf("conversion rate %q: %w", req.Rate, models.ErrInvalidExpense)
	}
	source, target, err := service.BuildConversionLegs(
		req.DebtorID, req.CreditorID, req.Amount, req.FromCurrency, req.ToCurrency, rate)
	if err != nil {
		return nil, nil, err
	}
	source.GroupID = req.GroupID
	target.GroupID = req.GroupID
	return source, target, nil
}

func (s *server) handleCreateConversion(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	source, target, err := req.legs()
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if err := s.ledger.CreateConversion(r.Context(), source, target, actorID(r)); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conversionResponse{Source: source, Target: target})
}

func (s *server) handleUpdateConversion(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	source, target, err := req.legs()
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if err := s.ledger.UpdateConversion(r.Context(), r.PathValue("id"), source, target, actorID(r)); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversionResponse{Source: source, Target: target})
}

type settlementRequest struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	GroupID    string `json:"group_id"`
}

func (s *server) handleRecordSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	created, err := s.ledger.RecordSettlement(r.Context(),
		req.FromUserID, req.ToUserID, req.Amount, req.Currency, req.GroupID, actorID(r))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var group models.Group
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	created, err := s.ledger.CreateGroup(r.Context(), &group)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.ledger.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *server) handleArchiveGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ArchiveGroup(r.Context(), r.PathValue("id")); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGroupBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.ledger.GroupBalances(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Recalculate(r.Context(), r.PathValue("id")); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUserBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.ledger.BalancesForUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeLedgerError maps ledger sentinel errors to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err)
	case errors.Is(err, models.ErrNotAuthorized):
		writeError(w, r, http.StatusForbidden, err)
	case errors.Is(err, models.ErrGroupArchived):
		writeError(w, r, http.StatusConflict, err)
	case errors.Is(err, models.ErrInvalidExpense),
		errors.Is(err, models.ErrIncompleteSplit),
		errors.Is(err, models.ErrUnsupportedSplitType),
		errors.Is(err, models.ErrLinkedConversion):
		writeError(w, r, http.StatusBadRequest, err)
	default:
		writeError(w, r, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
