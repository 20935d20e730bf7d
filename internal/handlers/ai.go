package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fluxgate/backend/internal/broker"
	"github.com/fluxgate/backend/internal/ledger"
	"github.com/fluxgate/backend/internal/middleware"
	"github.com/fluxgate/backend/internal/models"
	"github.com/fluxgate/backend/internal/provider"
)

// AssetFetcher streams provider-hosted binaries for the download proxy.
type AssetFetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, string, error)
}

// AIHandler serves task submission, status polling and the asset download
// proxy.
type AIHandler struct {
	Broker *broker.Service
	Ledger *ledger.Service
	Assets AssetFetcher
	Logger *slog.Logger
}

// CreateTask handles POST /api/ai.
func (h *AIHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Input == "" {
		http.Error(w, `{"error":"input is required"}`, http.StatusBadRequest)
		return
	}

	// Submission may be the user's first contact; the debit on completion
	// requires the account to exist.
	if _, _, err := h.Ledger.EnsureAccount(r.Context(), id.UserID, id.Email); err != nil {
		h.Logger.Error("ensure account", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	taskID, err := h.Broker.Submit(r.Context(), id.UserID, req)
	if err != nil {
		h.writeSubmitError(w, id.UserID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID})
}

func (h *AIHandler) writeSubmitError(w http.ResponseWriter, userID string, err error) {
	var rejected *provider.RejectedError
	switch {
	case errors.Is(err, provider.ErrInvalidParameters):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &rejected):
		// Propagate the upstream status and body so the client sees what
		// the provider objected to.
		writeJSON(w, rejected.StatusCode, map[string]string{"error": "provider rejected request", "detail": rejected.Body})
	case errors.Is(err, provider.ErrUnreachable):
		http.Error(w, `{"error":"provider unreachable"}`, http.StatusBadGateway)
	default:
		h.Logger.Error("submit task", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

// TaskStatus handles GET /api/ai/status/{task_id}.
func (h *AIHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if taskID == "" {
		http.Error(w, `{"error":"invalid task id"}`, http.StatusBadRequest)
		return
	}

	resp, err := h.Broker.Poll(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, broker.ErrTaskNotFound):
			http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		case broker.IsRetryable(err):
			// The task is still Pending; the client should poll again.
			http.Error(w, `{"error":"provider polling error, retry later"}`, http.StatusBadGateway)
		default:
			h.Logger.Error("poll task", "task_id", taskID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Download handles GET /api/ai/download?url=. Plain pass-through so the
// browser gets an attachment instead of a cross-origin image URL.
func (h *AIHandler) Download(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		http.Error(w, `{"error":"url parameter must be an absolute http(s) URL"}`, http.StatusBadRequest)
		return
	}

	body, contentType, err := h.Assets.Download(r.Context(), url)
	if err != nil {
		h.Logger.Error("asset download", "url", url, "error", err)
		http.Error(w, `{"error":"failed to fetch asset"}`, http.StatusBadGateway)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename=ai-result.png`)
	if _, err := io.Copy(w, body); err != nil {
		h.Logger.Error("stream asset", "url", url, "error", err)
	}
}
