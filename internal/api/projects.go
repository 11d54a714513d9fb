package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Portfolio/internal/hermes"
	"github.com/MikeSquared-Agency/Portfolio/internal/metrics"
	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type ProjectsHandler struct {
	store     store.Store
	hermes    hermes.Client
	replanner Replanner
	logger    *slog.Logger
}

func NewProjectsHandler(s store.Store, h hermes.Client, rp Replanner, logger *slog.Logger) *ProjectsHandler {
	return &ProjectsHandler{store: s, hermes: h, replanner: rp, logger: logger}
}

type CreateProjectRequest struct {
	Title           string          `json:"title" validate:"required,max=200"`
	Summary         string          `json:"summary,omitempty" validate:"max=2000"`
	BizImpact       store.RawImpact `json:"biz_impact" validate:"max=64"`
	DevLoad         string          `json:"dev_load" validate:"max=16"`
	ReleaseWindow   string          `json:"release_window,omitempty" validate:"max=32"`
	TargetDate      string          `json:"target_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	LatestStartDate string          `json:"latest_start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	KPI             string          `json:"kpi,omitempty" validate:"max=500"`
}

// UpdateProjectRequest is a partial update; absent fields are left alone.
type UpdateProjectRequest struct {
	Title           *string          `json:"title" validate:"omitempty,max=200"`
	Summary         *string          `json:"summary" validate:"omitempty,max=2000"`
	BizImpact       *store.RawImpact `json:"biz_impact" validate:"omitempty,max=64"`
	DevLoad         *string          `json:"dev_load" validate:"omitempty,max=16"`
	ReleaseWindow   *string          `json:"release_window" validate:"omitempty,max=32"`
	TargetDate      *string          `json:"target_date" validate:"omitempty,eq=|datetime=2006-01-02"`
	LatestStartDate *string          `json:"latest_start_date" validate:"omitempty,eq=|datetime=2006-01-02"`
	KPI             *string          `json:"kpi" validate:"omitempty,max=500"`
}

// Create handles POST /api/v1/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	p := &store.Project{
		Title:           req.Title,
		Summary:         req.Summary,
		BizImpact:       req.BizImpact,
		DevLoad:         req.DevLoad,
		ReleaseWindow:   req.ReleaseWindow,
		TargetDate:      req.TargetDate,
		LatestStartDate: req.LatestStartDate,
		KPI:             req.KPI,
	}
	if err := h.store.CreateProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.ProjectsCreated.Inc()

	h.changed(hermes.ProjectCreated, p)
	writeJSON(w, http.StatusCreated, p)
}

// List handles GET /api/v1/projects
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := projectFilter(r)
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Limit = n
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filter.Offset = n
		}
	}

	projects, err := h.store.ListProjects(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// Get handles GET /api/v1/projects/{id}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	p, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PATCH /api/v1/projects/{id}
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	p, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	var req UpdateProjectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" {
			writeError(w, http.StatusBadRequest, "title required")
			return
		}
		req.Title = &t
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	req.apply(p)

	if err := h.store.UpdateProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.changed(hermes.ProjectUpdated, p)
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/v1/projects/{id}
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	p, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.changed(hermes.ProjectDeleted, p)
	w.WriteHeader(http.StatusNoContent)
}

func (req *UpdateProjectRequest) apply(p *store.Project) {
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Summary != nil {
		p.Summary = *req.Summary
	}
	if req.BizImpact != nil {
		p.BizImpact = *req.BizImpact
	}
	if req.DevLoad != nil {
		p.DevLoad = *req.DevLoad
	}
	if req.ReleaseWindow != nil {
		p.ReleaseWindow = *req.ReleaseWindow
	}
	if req.TargetDate != nil {
		p.TargetDate = *req.TargetDate
	}
	if req.LatestStartDate != nil {
		p.LatestStartDate = *req.LatestStartDate
	}
	if req.KPI != nil {
		p.KPI = *req.KPI
	}
}

// changed announces a project change on the bus and asks for a re-rank.
// Neither can fail the request.
func (h *ProjectsHandler) changed(action hermes.ProjectAction, p *store.Project) {
	if h.hermes != nil {
		if err := h.hermes.PublishProjectEvent(hermes.ProjectEvent{
			ProjectID: p.ID.String(),
			Action:    action,
			Title:     p.Title,
			DevLoad:   p.DevLoad,
			BizImpact: string(p.BizImpact),
			Timestamp: time.Now().UTC(),
		}); err != nil {
			h.logger.Warn("failed to publish project event", "project_id", p.ID, "action", action, "error", err)
		}
	}
	if h.replanner != nil {
		h.replanner.Trigger()
	}
}

func projectFilter(r *http.Request) store.ProjectFilter {
	return store.ProjectFilter{
		ReleaseWindow: r.URL.Query().Get("release_window"),
		DevLoad:       r.URL.Query().Get("dev_load"),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// validationMessage turns validator errors into a short client-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch {
		case fe.Tag() == "required":
			msgs = append(msgs, field+" required")
		case strings.Contains(fe.Tag(), "datetime"):
			msgs = append(msgs, field+" must be YYYY-MM-DD")
		case fe.Tag() == "max":
			msgs = append(msgs, fmt.Sprintf("%s longer than %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
