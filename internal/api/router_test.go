package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Portfolio/internal/hermes"
	"github.com/MikeSquared-Agency/Portfolio/internal/metrics"
	"github.com/MikeSquared-Agency/Portfolio/internal/scoring"
	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

// memStore keeps projects in insertion order, like the real stores'
// created_at ordering.
type memStore struct {
	mu       sync.Mutex
	projects []*store.Project
	err      error
}

func (m *memStore) CreateProject(_ context.Context, p *store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.projects = append(m.projects, &cp)
	return nil
}
func (m *memStore) GetProject(_ context.Context, id uuid.UUID) (*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.projects {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}
func (m *memStore) ListProjects(_ context.Context, f store.ProjectFilter) ([]*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*store.Project
	for _, p := range m.projects {
		if f.ReleaseWindow != "" && p.ReleaseWindow != f.ReleaseWindow {
			continue
		}
		if f.DevLoad != "" && p.DevLoad != f.DevLoad {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}
func (m *memStore) UpdateProject(_ context.Context, p *store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.projects {
		if existing.ID == p.ID {
			p.UpdatedAt = time.Now().UTC()
			cp := *p
			m.projects[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("project %s not found", p.ID)
}
func (m *memStore) DeleteProject(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.projects {
		if p.ID == id {
			m.projects = append(m.projects[:i], m.projects[i+1:]...)
			return nil
		}
	}
	return nil
}
func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

type MockHermes struct {
	mock.Mock
}

func (m *MockHermes) PublishProjectEvent(evt hermes.ProjectEvent) error {
	args := m.Called(evt)
	return args.Error(0)
}
func (m *MockHermes) PublishRankingUpdated(evt hermes.RankingUpdatedEvent) error {
	args := m.Called(evt)
	return args.Error(0)
}
func (m *MockHermes) Subscribe(subject string, handler func(string, []byte)) error {
	args := m.Called(subject, handler)
	return args.Error(0)
}
func (m *MockHermes) Close() {}

func projectEvent(id uuid.UUID, action hermes.ProjectAction) interface{} {
	return mock.MatchedBy(func(e hermes.ProjectEvent) bool {
		return e.ProjectID == id.String() && e.Action == action
	})
}

type countingReplanner struct {
	mu    sync.Mutex
	calls int
}

func (c *countingReplanner) Trigger() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

type testEnv struct {
	store     *memStore
	hermes    *MockHermes
	replanner *countingReplanner
	handler   http.Handler
}

func newTestEnv(t *testing.T, adminToken string) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     &memStore{},
		hermes:    &MockHermes{},
		replanner: &countingReplanner{},
	}
	env.handler = NewRouter(Deps{
		Store:      env.store,
		Hermes:     env.hermes,
		Ranker:     scoring.NewRanker(scoring.DefaultEffortScale(), scoring.DefaultCapacity),
		Replanner:  env.replanner,
		AdminToken: adminToken,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}

func (e *testEnv) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, title, impact, load string) store.Project {
	t.Helper()
	w := e.do("POST", "/api/v1/projects", map[string]string{"title": title, "biz_impact": impact, "dev_load": load})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p store.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

type rankingBody struct {
	Projects []struct {
		ID               string  `json:"id"`
		Title            string  `json:"title"`
		Impact           float64 `json:"impact"`
		EffortWeight     int     `json:"effort_weight"`
		Score            float64 `json:"impact_score"`
		CumulativeWeight int     `json:"cumulative_weight"`
		OverCapacity     bool    `json:"over_capacity"`
	} `json:"projects"`
	Capacity          float64 `json:"capacity"`
	TotalScore        float64 `json:"total_score"`
	TotalWeight       int     `json:"total_weight"`
	OverCapacityCount int     `json:"over_capacity_count"`
}

func decodeRanking(t *testing.T, w *httptest.ResponseRecorder) rankingBody {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rb rankingBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rb))
	return rb
}

func titles(rb rankingBody) []string {
	out := make([]string, len(rb.Projects))
	for i, p := range rb.Projects {
		out[i] = p.Title
	}
	return out
}

func TestCreateProject(t *testing.T) {
	env := newTestEnv(t, "")
	env.hermes.On("PublishProjectEvent", mock.MatchedBy(func(e hermes.ProjectEvent) bool {
		return e.Action == hermes.ProjectCreated && e.Title == "Checkout revamp" && !e.Timestamp.IsZero()
	})).Return(nil).Once()

	w := env.do("POST", "/api/v1/projects", map[string]interface{}{
		"title":             "  Checkout revamp ",
		"biz_impact":        12.5,
		"dev_load":          "M",
		"release_window":    "Q4 2025",
		"target_date":       "2025-11-30",
		"latest_start_date": "2025-10-01",
		"kpi":               "conversion",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p store.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, "Checkout revamp", p.Title)
	assert.Equal(t, store.RawImpact("12.5"), p.BizImpact)
	assert.Equal(t, "Q4 2025", p.ReleaseWindow)
	assert.Equal(t, 1, env.replanner.calls)
	env.hermes.AssertExpectations(t)
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t, "")
	cases := map[string]struct {
		body interface{}
		want string
	}{
		"missing title":   {map[string]string{"dev_load": "M"}, "title required"},
		"blank title":     {map[string]string{"title": "   "}, "title required"},
		"long title":      {map[string]string{"title": strings.Repeat("x", 201)}, "title longer than 200"},
		"bad target date": {map[string]string{"title": "a", "target_date": "30/11/2025"}, "target_date must be YYYY-MM-DD"},
		"malformed json":  {"{", "invalid request body"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.do("POST", "/api/v1/projects", c.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), c.want)
		})
	}
	env.hermes.AssertNotCalled(t, "PublishProjectEvent", mock.Anything)
	assert.Empty(t, env.store.projects)
}

func TestCreateProjectPublishFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, "")
	env.hermes.On("PublishProjectEvent", mock.Anything).Return(errors.New("nats down"))

	w := env.do("POST", "/api/v1/projects", map[string]string{"title": "a", "biz_impact": "1", "dev_load": "XS"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateProjectStoreError(t *testing.T) {
	env := newTestEnv(t, "")
	env.store.err = errors.New("db down")

	w := env.do("POST", "/api/v1/projects", map[string]string{"title": "a"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "db down")
}

func TestListProjects(t *testing.T) {
	env := newTestEnv(t, "")
	env.hermes.On("PublishProjectEvent", mock.Anything).Return(nil)

	w := env.do("GET", "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	env.create(t, "a", "1", "S")
	env.create(t, "b", "2", "M")
	env.create(t, "c", "3", "M")

	var list []store.Project
	w = env.do("GET", "/api/v1/projects?dev_load=M&limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].Title)
}

func TestGetProject(t *testing.T) {
	env := newTestEnv(t, "")
	env.hermes.On("PublishProjectEvent", mock.Anything).Return(nil)
	p := env.create(t, "a", "1", "S")

	w := env.do("GET", "/api/v1/projects/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("GET", "/api/v1/projects/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("GET", "/api/v1/projects/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateProject(t *testing.T) {
	env := newTestEnv(t, "")
	env.hermes.On("PublishProjectEvent", mock.Anything).Return(nil)
	p := env.create(t, "a", "1", "S")

	w := env.do("PATCH", "/api/v1/projects/"+p.ID.String(), map[string]interface{}{
		"biz_impact":  "40",
		"dev_load":    "XL",
		"target_date": "2026-01-15",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got store.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "a", got.Title)
	assert.Equal(t, store.RawImpact("40"), got.BizImpact)
	assert.Equal(t, "XL", got.DevLoad)
	assert.Equal(t, "2026-01-15", got.TargetDate)

	// clearing a date is allowed
	w = env.do("PATCH", "/api/v1/projects/"+p.ID.String(), map[string]interface{}{"target_date": ""})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.hermes.AssertCalled(t, "PublishProjectEvent", projectEvent(p.ID, hermes.ProjectUpdated))
	assert.Equal(t, 3, env.replanner.calls)
}

func TestUpdateProjectErrors(t *testing.T) {
	env := newTestEnv(t, "")
	env.hermes.On("PublishProjectEvent", mock.Anything).Return(nil)
	p := env.create(t, "a", "1", "S")

	w := env.do("PATCH", "/api/v1/projects/"+uuid.NewString(), map[string]string{"title": "b"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("PATCH", "/api/v1/projects/"+p.ID.String(), map[string]string{"title": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("PATCH", "/api/v1/projects/"+p.ID.String(), map[string]string{"latest_start_date": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "latest_start_date")
}

func TestDeleteProjectRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, "admin-token")
	env.hermes.On("PublishProjectEvent", mock.Anything).Return(nil)
	p := env.create(t, "a", "1", "S")

	w := env.do("DELETE", "/api/v1/projects/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("DELETE", "/api/v1/projects/"+p.ID.String(), nil, "Authorization", "Bearer admin-token")
	assert.Equal(t, http.StatusNoContent, w.Code)
	env.hermes.AssertCalled(t, "PublishProjectEvent", projectEvent(p.ID, hermes.ProjectDeleted))

	w = env.do("DELETE", "/api/v1/projects/"+p.ID.String(), nil, "Authorization", "Bearer admin-token")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRankingEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.hermes.On("PublishProjectEvent", mock.Anything).Return(nil)
	env.create(t, "huge", "100", "XXL")
	env.create(t, "medium", "9", "M")
	env.create(t, "small", "10", "S")

	rb := decodeRanking(t, env.do("GET", "/api/v1/ranking", nil))
	assert.Equal(t, []string{"small", "medium", "huge"}, titles(rb))
	assert.Equal(t, []int{3, 8, 108}, []int{rb.Projects[0].CumulativeWeight, rb.Projects[1].CumulativeWeight, rb.Projects[2].CumulativeWeight})
	assert.True(t, rb.Projects[2].OverCapacity)
	assert.False(t, rb.Projects[1].OverCapacity)
	assert.Equal(t, 20.0, rb.Capacity)
	assert.Equal(t, 108, rb.TotalWeight)
	assert.Equal(t, 1, rb.OverCapacityCount)

	rb = decodeRanking(t, env.do("GET", "/api/v1/ranking?capacity=5", nil))
	assert.Equal(t, 5.0, rb.Capacity)
	assert.Equal(t, 2, rb.OverCapacityCount)
}

func TestRankingEndpointGaugesTrackStoredPortfolioOnly(t *testing.T) {
	env := newTestEnv(t, "")
	env.hermes.On("PublishProjectEvent", mock.Anything).Return(nil)
	env.create(t, "a", "5", "XXL")
	env.create(t, "b", "5", "S")

	metrics.RankedProjects.Set(-1)
	for _, path := range []string{"/api/v1/ranking?capacity=500", "/api/v1/ranking?dev_load=S"} {
		decodeRanking(t, env.do("GET", path, nil))
		assert.Equal(t, -1.0, testutil.ToFloat64(metrics.RankedProjects), path)
	}
	decodeRanking(t, env.do("POST", "/api/v1/ranking/preview", `{"projects":[{"title":"x","dev_load":"S"}]}`))
	assert.Equal(t, -1.0, testutil.ToFloat64(metrics.RankedProjects))

	decodeRanking(t, env.do("GET", "/api/v1/ranking", nil))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RankedProjects))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProjectsOverCapacity))
	assert.Equal(t, 103.0, testutil.ToFloat64(metrics.RankingTotalWeight))
}

func TestRankingEndpointRejectsBadCapacity(t *testing.T) {
	env := newTestEnv(t, "")
	for _, c := range []string{"-1", "abc", "NaN", "Inf"} {
		w := env.do("GET", "/api/v1/ranking?capacity="+c, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "capacity=%s", c)
	}
}

func TestRankingEndpointStoreError(t *testing.T) {
	env := newTestEnv(t, "")
	env.store.err = errors.New("db down")
	w := env.do("GET", "/api/v1/ranking", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRankingEndpointReadsPastListLimit(t *testing.T) {
	env := newTestEnv(t, "")
	n := store.DefaultListLimit + 25
	for i := 0; i < n; i++ {
		env.store.projects = append(env.store.projects, &store.Project{
			ID: uuid.New(), Title: fmt.Sprintf("p%d", i), BizImpact: "1", DevLoad: "XS",
		})
	}
	env.store.projects[n-1].BizImpact = "50"

	rb := decodeRanking(t, env.do("GET", "/api/v1/ranking", nil))
	require.Len(t, rb.Projects, n)
	assert.Equal(t, fmt.Sprintf("p%d", n-1), rb.Projects[0].Title)
	assert.Equal(t, n, rb.TotalWeight)
	assert.Equal(t, n-20, rb.OverCapacityCount)
}

func TestRankingPreviewHugeImpactStaysEncodable(t *testing.T) {
	env := newTestEnv(t, "")
	body := `{"projects":[
		{"title":"a","biz_impact":"1e308","dev_load":"XS"},
		{"title":"b","biz_impact":"1e308","dev_load":"XS"}
	]}`

	rb := decodeRanking(t, env.do("POST", "/api/v1/ranking/preview", body))
	assert.Len(t, rb.Projects, 2)
	assert.Equal(t, math.MaxFloat64, rb.TotalScore)
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]float64{"score": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "encode response")
}

func TestRankingPreview(t *testing.T) {
	env := newTestEnv(t, "")
	body := `{"projects":[
		{"title":"low","biz_impact":"2","dev_load":"L"},
		{"title":"high","biz_impact":9,"dev_load":"XS"},
		{"title":"odd","biz_impact":"n/a","dev_load":"huge"}
	],"capacity":8}`

	rb := decodeRanking(t, env.do("POST", "/api/v1/ranking/preview", body))
	assert.Equal(t, []string{"high", "low", "odd"}, titles(rb))
	assert.Equal(t, 8.0, rb.Capacity)
	assert.Equal(t, []bool{false, true, true}, []bool{rb.Projects[0].OverCapacity, rb.Projects[1].OverCapacity, rb.Projects[2].OverCapacity})
	assert.Equal(t, 0.0, rb.Projects[2].Score)
	assert.Equal(t, 0, rb.Projects[2].EffortWeight)

	assert.Empty(t, env.store.projects, "preview must not persist")
	env.hermes.AssertNotCalled(t, "PublishProjectEvent", mock.Anything)
}

func TestRankingPreviewDefaultsCapacity(t *testing.T) {
	env := newTestEnv(t, "")
	rb := decodeRanking(t, env.do("POST", "/api/v1/ranking/preview", `{"projects":[]}`))
	assert.Equal(t, scoring.DefaultCapacity, rb.Capacity)
	assert.NotNil(t, rb.Projects)
	assert.Empty(t, rb.Projects)
}

func TestRankingPreviewErrors(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do("POST", "/api/v1/ranking/preview", `{"projects":[],"capacity":-3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/v1/ranking/preview", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	many := make([]map[string]string, maxPreviewProjects+1)
	for i := range many {
		many[i] = map[string]string{"title": "p"}
	}
	w = env.do("POST", "/api/v1/ranking/preview", map[string]interface{}{"projects": many})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEffortScaleEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do("GET", "/api/v1/effort-scale", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"labels": [
			{"label":"XS","weight":1},
			{"label":"S","weight":3},
			{"label":"M","weight":5},
			{"label":"L","weight":8},
			{"label":"XL","weight":13},
			{"label":"XXL","weight":100}
		],
		"capacity": 20
	}`, w.Body.String())
}

func TestMetricsRouter(t *testing.T) {
	h := NewMetricsRouter()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portfolio_projects_created_total")
}
