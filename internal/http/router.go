package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"pollsync/internal/domain/room"
	"pollsync/internal/platform/token"
	"pollsync/internal/ws"
)

type Handler struct {
	registry *room.Registry
	tokens   *token.Manager
	db       *sql.DB // archive DB, may be nil
}

func NewRouter(
	registry *room.Registry,
	wsHandler *ws.Handler,
	tokens *token.Manager,
	db *sql.DB,
) http.Handler {
	h := &Handler{
		registry: registry,
		tokens:   tokens,
		db:       db,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger)
	r.Use(CORSMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", h.handleReady)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// realtime socket; kept outside the request timeout middleware so
	// long-lived connections are not cut off
	r.With(RateLimitPerIP(rate.Every(time.Second), 10)).Get("/ws", wsHandler.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.With(RateLimitPerIP(rate.Every(time.Minute/10), 3)).Post("/rooms", h.handleCreateRoom)
		r.Get("/rooms/{code}", h.handleGetSnapshot)
		r.Delete("/rooms/{code}", h.handleDestroyRoom)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		// no archive configured; the in-memory core is always ready
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "archive_unavailable",
			"message": "archive database not ready",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
