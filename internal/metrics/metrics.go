// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MikeSquared-Agency/Portfolio/internal/scoring"
)

const namespace = "portfolio"

// Ranking sources.
const (
	SourceAPI     = "api"
	SourcePreview = "preview"
	SourcePlanner = "planner"
)

var (
	RankingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rankings_total",
		Help:      "Rankings computed, by caller.",
	}, []string{"source"})

	RankingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ranking_duration_seconds",
		Help:      "Time spent ranking a portfolio.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	RankedProjects = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ranked_projects",
		Help:      "Projects in the most recent stored-portfolio ranking.",
	})

	ProjectsOverCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "projects_over_capacity",
		Help:      "Projects beyond team capacity in the most recent stored-portfolio ranking.",
	})

	RankingTotalWeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ranking_total_weight",
		Help:      "Summed effort weight of the most recent stored-portfolio ranking.",
	})

	ProjectsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projects_created_total",
		Help:      "Projects created through the API.",
	})
)

// ObserveRanking counts one ranking run and its duration.
func ObserveRanking(source string, elapsed time.Duration) {
	RankingsTotal.WithLabelValues(source).Inc()
	RankingDuration.Observe(elapsed.Seconds())
}

// SetPortfolio publishes the figures of a ranking of the whole stored
// portfolio at the configured capacity. Filtered, re-capacitied or preview
// rankings must not be passed here.
func SetPortfolio(r scoring.Ranking) {
	RankedProjects.Set(float64(len(r.Projects)))
	ProjectsOverCapacity.Set(float64(r.OverCapacityCount))
	RankingTotalWeight.Set(float64(r.TotalWeight))
}
