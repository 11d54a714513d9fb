// Package projectsapi talks to a running portfolio API.
package projectsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

const clientID = "portfolio-cli"

type Client interface {
	ListProjects(ctx context.Context) ([]*store.Project, error)
	CreateProject(ctx context.Context, p *store.Project) (*store.Project, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) doReq(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Client-ID", clientID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("portfolio api %s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// ListProjects fetches every project, oldest first, one page at a time.
func (c *HTTPClient) ListProjects(ctx context.Context) ([]*store.Project, error) {
	var all []*store.Project
	for offset := 0; ; {
		path := fmt.Sprintf("/api/v1/projects?limit=%d&offset=%d", store.DefaultListLimit, offset)
		data, err := c.doReq(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		var page []*store.Project
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decode projects: %w", err)
		}
		all = append(all, page...)
		if len(page) < store.DefaultListLimit {
			return all, nil
		}
		offset += len(page)
	}
}

// CreateProject posts p and returns the stored record.
func (c *HTTPClient) CreateProject(ctx context.Context, p *store.Project) (*store.Project, error) {
	payload := map[string]interface{}{
		"title":      p.Title,
		"biz_impact": p.BizImpact,
		"dev_load":   p.DevLoad,
	}
	optional := map[string]string{
		"summary":           p.Summary,
		"release_window":    p.ReleaseWindow,
		"target_date":       p.TargetDate,
		"latest_start_date": p.LatestStartDate,
		"kpi":               p.KPI,
	}
	for k, v := range optional {
		if v != "" {
			payload[k] = v
		}
	}

	data, err := c.doReq(ctx, http.MethodPost, "/api/v1/projects", payload)
	if err != nil {
		return nil, err
	}
	var created store.Project
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &created, nil
}
