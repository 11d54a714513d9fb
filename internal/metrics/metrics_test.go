package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/MikeSquared-Agency/Portfolio/internal/scoring"
	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

func TestObserveRankingCountsBySource(t *testing.T) {
	before := testutil.ToFloat64(RankingsTotal.WithLabelValues(SourcePlanner))
	preview := testutil.ToFloat64(RankingsTotal.WithLabelValues(SourcePreview))

	ObserveRanking(SourcePlanner, time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(RankingsTotal.WithLabelValues(SourcePlanner)))
	assert.Equal(t, preview, testutil.ToFloat64(RankingsTotal.WithLabelValues(SourcePreview)))
}

func TestObserveRankingLeavesGauges(t *testing.T) {
	RankedProjects.Set(7)
	ObserveRanking(SourcePreview, time.Millisecond)
	ObserveRanking(SourceAPI, time.Millisecond)
	assert.Equal(t, 7.0, testutil.ToFloat64(RankedProjects))
}

func TestSetPortfolio(t *testing.T) {
	projects := []*store.Project{
		{Title: "a", BizImpact: "10", DevLoad: "S"},
		{Title: "b", BizImpact: "100", DevLoad: "XXL"},
	}
	SetPortfolio(scoring.Rank(projects, scoring.DefaultEffortScale(), 20))

	assert.Equal(t, 2.0, testutil.ToFloat64(RankedProjects))
	assert.Equal(t, 1.0, testutil.ToFloat64(ProjectsOverCapacity))
	assert.Equal(t, 103.0, testutil.ToFloat64(RankingTotalWeight))
}
