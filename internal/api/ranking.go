package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MikeSquared-Agency/Portfolio/internal/metrics"
	"github.com/MikeSquared-Agency/Portfolio/internal/scoring"
	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

// maxPreviewProjects bounds a single preview request.
const maxPreviewProjects = 1000

type RankingHandler struct {
	store  store.Store
	ranker *scoring.Ranker
}

func NewRankingHandler(s store.Store, r *scoring.Ranker) *RankingHandler {
	return &RankingHandler{store: s, ranker: r}
}

type PreviewRequest struct {
	Projects []*store.Project `json:"projects"`
	Capacity *float64         `json:"capacity,omitempty"`
}

type EffortScaleResponse struct {
	Labels   []scoring.EffortEntry `json:"labels"`
	Capacity float64               `json:"capacity"`
}

// Get handles GET /api/v1/ranking
func (h *RankingHandler) Get(w http.ResponseWriter, r *http.Request) {
	capacity := h.ranker.Capacity()
	overridden := false
	if s := r.URL.Query().Get("capacity"); s != "" {
		c, err := strconv.ParseFloat(s, 64)
		if err != nil || !validCapacity(c) {
			writeError(w, http.StatusBadRequest, "capacity must be a finite non-negative number")
			return
		}
		capacity = c
		overridden = true
	}

	filter := projectFilter(r)
	projects, err := store.ListAllProjects(r.Context(), h.store, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	start := time.Now()
	ranking := h.ranker.RankWithCapacity(projects, capacity)
	metrics.ObserveRanking(metrics.SourceAPI, time.Since(start))
	if !overridden && filter == (store.ProjectFilter{}) {
		metrics.SetPortfolio(ranking)
	}
	writeJSON(w, http.StatusOK, ranking)
}

// Preview handles POST /api/v1/ranking/preview. Nothing is stored.
func (h *RankingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Projects) > maxPreviewProjects {
		writeError(w, http.StatusBadRequest, "too many projects")
		return
	}
	capacity := h.ranker.Capacity()
	if req.Capacity != nil {
		if !validCapacity(*req.Capacity) {
			writeError(w, http.StatusBadRequest, "capacity must be a finite non-negative number")
			return
		}
		capacity = *req.Capacity
	}

	start := time.Now()
	ranking := h.ranker.RankWithCapacity(req.Projects, capacity)
	metrics.ObserveRanking(metrics.SourcePreview, time.Since(start))
	writeJSON(w, http.StatusOK, ranking)
}

// EffortScale handles GET /api/v1/effort-scale
func (h *RankingHandler) EffortScale(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EffortScaleResponse{
		Labels:   h.ranker.Scale().Entries(),
		Capacity: h.ranker.Capacity(),
	})
}

func validCapacity(c float64) bool {
	return !math.IsNaN(c) && !math.IsInf(c, 0) && c >= 0
}
