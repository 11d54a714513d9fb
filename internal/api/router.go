package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Portfolio/internal/hermes"
	"github.com/MikeSquared-Agency/Portfolio/internal/scoring"
	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

// Replanner is told when the stored portfolio changed.
type Replanner interface {
	Trigger()
}

type Deps struct {
	Store             store.Store
	Hermes            hermes.Client
	Ranker            *scoring.Ranker
	Replanner         Replanner
	AdminToken        string
	RequestsPerMinute int
	Logger            *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(d.Logger))
	r.Use(RateLimitMiddleware(d.RequestsPerMinute))

	projects := NewProjectsHandler(d.Store, d.Hermes, d.Replanner, d.Logger)
	ranking := NewRankingHandler(d.Store, d.Ranker)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/projects", projects.Create)
		r.Get("/projects", projects.List)
		r.Get("/projects/{id}", projects.Get)
		r.Patch("/projects/{id}", projects.Update)

		r.Get("/ranking", ranking.Get)
		r.Post("/ranking/preview", ranking.Preview)
		r.Get("/effort-scale", ranking.EffortScale)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminToken))
			r.Delete("/projects/{id}", projects.Delete)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
