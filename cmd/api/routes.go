package main

import (
	"net/http"

	"github.com/fluxgate/backend/internal/handlers"
)

// RegisterRoutes wires the API surface.
// Middleware chain: RequireAuth -> (RequireAdminKey on /credits/add) -> handler.
func RegisterRoutes(
	mux *http.ServeMux,
	credits *handlers.CreditsHandler,
	ai *handlers.AIHandler,
	requireAuth func(http.Handler) http.Handler,
	requireAdmin func(http.Handler) http.Handler,
) {
	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	mux.Handle("GET /api/credits", authed(credits.GetCredits))
	mux.Handle("GET /api/credits/history", authed(credits.ListMovements))
	mux.Handle("POST /api/credits/add", requireAuth(requireAdmin(http.HandlerFunc(credits.AddCredits))))

	mux.Handle("POST /api/ai", authed(ai.CreateTask))
	mux.Handle("GET /api/ai/status/{task_id}", authed(ai.TaskStatus))

	// Asset proxy: the URL itself is the capability, same as the upstream
	// delivery URL it wraps.
	mux.HandleFunc("GET /api/ai/download", ai.Download)
}
