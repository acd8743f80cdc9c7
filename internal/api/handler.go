// Package api provides the HTTP handlers for the parleyd intent service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"parley/internal/store"
	"parley/internal/version"
)

// Handler serves the query-processing API backed by one repository.
type Handler struct {
	repo store.Repository
}

func NewHandler(repo store.Repository) *Handler {
	return &Handler{repo: repo}
}

// Router assembles the full parleyd route tree.
func (h *Handler) Router(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(CORS(allowedOrigins))

	r.Get("/", h.Root)
	r.Route("/api", func(r chi.Router) {
		r.Post("/process-query", h.ProcessQuery)
		r.Get("/stats", h.Stats)
	})

	return r
}

// Root reports service liveness.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"message": "parley intent service is running",
		"version": version.Version,
	})
}

// Stats reports corpus sizes.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	faqs, users, err := h.repo.Counts(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to query statistics")
		return
	}
	JSON(w, http.StatusOK, map[string]int64{
		"total_faqs":  faqs,
		"total_users": users,
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// CORS returns middleware that handles CORS headers for browser clients.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
