package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fluxgate/backend/internal/ledger"
	"github.com/fluxgate/backend/internal/middleware"
)

// CreditsHandler serves balance, audit-trail and administrative grant
// endpoints.
type CreditsHandler struct {
	Ledger *ledger.Service
	Logger *slog.Logger
}

// GetCredits handles GET /api/credits. First contact provisions the account
// with the signup grant.
func (h *CreditsHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	balance, created, err := h.Ledger.EnsureAccount(r.Context(), id.UserID, id.Email)
	if err != nil {
		h.Logger.Error("ensure account", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if created {
		h.Logger.Info("account provisioned", "user_id", id.UserID, "credits", balance)
	}

	writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

// ListMovements handles GET /api/credits/history: the account's audit trail,
// newest first.
func (h *CreditsHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	movements, err := h.Ledger.Movements(r.Context(), id.UserID)
	if err != nil {
		h.Logger.Error("list movements", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type addCreditsRequest struct {
	Amount int `json:"amount"`
}

// AddCredits handles POST /api/credits/add (admin-key gated). The grant goes
// to the calling user; the amount must be positive.
func (h *CreditsHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req addCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	// First observation through the admin path still provisions lazily.
	if _, _, err := h.Ledger.EnsureAccount(r.Context(), id.UserID, id.Email); err != nil {
		h.Logger.Error("ensure account", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	balance, err := h.Ledger.Grant(r.Context(), id.UserID, req.Amount)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			http.Error(w, `{"error":"amount must be positive"}`, http.StatusBadRequest)
			return
		}
		h.Logger.Error("grant credits", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	h.Logger.Info("credits granted", "user_id", id.UserID, "amount", req.Amount, "balance", balance)
	writeJSON(w, http.StatusOK, map[string]int{"credits_left": balance})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
