package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RawImpact is a business impact value exactly as it was entered. Clients
// send it as a string or a number; either way the text is kept and only
// interpreted at ranking time.
type RawImpact string

func (r *RawImpact) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RawImpact(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// bools, objects: nothing usable, rank as zero impact
		*r = ""
		return nil
	}
	*r = RawImpact(n.String())
	return nil
}

func (r *RawImpact) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode || value.Tag == "!!null" {
		*r = ""
		return nil
	}
	*r = RawImpact(value.Value)
	return nil
}

type Project struct {
	ID              uuid.UUID `json:"id" yaml:"id,omitempty" db:"id"`
	Title           string    `json:"title" yaml:"title" db:"title"`
	Summary         string    `json:"summary,omitempty" yaml:"summary,omitempty" db:"summary"`
	BizImpact       RawImpact `json:"biz_impact" yaml:"biz_impact" db:"biz_impact"`
	DevLoad         string    `json:"dev_load" yaml:"dev_load" db:"dev_load"`
	ReleaseWindow   string    `json:"release_window,omitempty" yaml:"release_window,omitempty" db:"release_window"`
	TargetDate      string    `json:"target_date,omitempty" yaml:"target_date,omitempty" db:"target_date"`
	LatestStartDate string    `json:"latest_start_date,omitempty" yaml:"latest_start_date,omitempty" db:"latest_start_date"`
	KPI             string    `json:"kpi,omitempty" yaml:"kpi,omitempty" db:"kpi"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at,omitempty" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at,omitempty" db:"updated_at"`
}

type ProjectFilter struct {
	ReleaseWindow string
	DevLoad       string
	Limit         int
	Offset        int
}

// DefaultListLimit caps a single ListProjects page when no limit is given.
// Use ListAllProjects to read past it.
const DefaultListLimit = 500

func (f ProjectFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	// GetProject returns nil, nil when no project has the id.
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	// ListProjects returns projects oldest first.
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id uuid.UUID) error

	Migrate(ctx context.Context) error
	Close() error
}

// ListAllProjects pages through ListProjects until a short page comes back
// and returns every matching project, oldest first. Limit and Offset on the
// filter are ignored.
func ListAllProjects(ctx context.Context, s Store, filter ProjectFilter) ([]*Project, error) {
	filter.Limit = DefaultListLimit
	filter.Offset = 0

	var all []*Project
	for {
		page, err := s.ListProjects(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			return all, nil
		}
		filter.Offset += len(page)
	}
}
