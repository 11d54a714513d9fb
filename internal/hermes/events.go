package hermes

import (
	"errors"
	"fmt"
	"time"
)

type ProjectAction string

const (
	ProjectCreated ProjectAction = "created"
	ProjectUpdated ProjectAction = "updated"
	ProjectDeleted ProjectAction = "deleted"
)

type ProjectEvent struct {
	ProjectID string        `json:"project_id"`
	Action    ProjectAction `json:"action"`
	Title     string        `json:"title,omitempty"`
	DevLoad   string        `json:"dev_load,omitempty"`
	BizImpact string        `json:"biz_impact,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Subject is where the event is published, derived from its action.
func (e ProjectEvent) Subject() (string, error) {
	if e.ProjectID == "" {
		return "", errors.New("project event has no project id")
	}
	switch e.Action {
	case ProjectCreated:
		return SubjectProjectCreated(e.ProjectID), nil
	case ProjectUpdated:
		return SubjectProjectUpdated(e.ProjectID), nil
	case ProjectDeleted:
		return SubjectProjectDeleted(e.ProjectID), nil
	}
	return "", fmt.Errorf("unknown project action %q", e.Action)
}

type RankingUpdatedEvent struct {
	ProjectIDs        []string  `json:"project_ids"`
	OverCapacityIDs   []string  `json:"over_capacity_ids"`
	Capacity          float64   `json:"capacity"`
	TotalScore        float64   `json:"total_score"`
	TotalWeight       int       `json:"total_weight"`
	OverCapacityCount int       `json:"over_capacity_count"`
	Timestamp         time.Time `json:"timestamp"`
}
