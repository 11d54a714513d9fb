package scoring

import (
	"math"
	"sort"

	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

// DefaultCapacity is the team velocity a sprint can absorb, in effort weight.
const DefaultCapacity = 20.0

// RankedProject is a project annotated with its ranking. The embedded
// project is the caller's record and is never modified.
type RankedProject struct {
	*store.Project
	Impact           float64 `json:"impact"`
	EffortWeight     int     `json:"effort_weight"`
	Score            float64 `json:"impact_score"`
	CumulativeWeight int     `json:"cumulative_weight"`
	OverCapacity     bool    `json:"over_capacity"`
}

// Ranking is the full ranked portfolio plus its aggregate figures.
type Ranking struct {
	Projects          []RankedProject `json:"projects"`
	Capacity          float64         `json:"capacity"`
	TotalScore        float64         `json:"total_score"`
	TotalWeight       int             `json:"total_weight"`
	OverCapacityCount int             `json:"over_capacity_count"`
}

// IDs returns project ids in ranked order.
func (r Ranking) IDs() []string {
	ids := make([]string, len(r.Projects))
	for i, p := range r.Projects {
		ids[i] = p.ID.String()
	}
	return ids
}

// OverCapacityIDs returns ids of the flagged projects in ranked order.
func (r Ranking) OverCapacityIDs() []string {
	var ids []string
	for _, p := range r.Projects {
		if p.OverCapacity {
			ids = append(ids, p.ID.String())
		}
	}
	return ids
}

// Ranker ranks projects against a fixed effort scale and capacity.
// It holds no mutable state and is safe for concurrent use.
type Ranker struct {
	scale    EffortScale
	capacity float64
}

// NewRanker creates a Ranker with the given scale and capacity.
func NewRanker(scale EffortScale, capacity float64) *Ranker {
	return &Ranker{scale: scale, capacity: capacity}
}

func (r *Ranker) Scale() EffortScale { return r.scale }
func (r *Ranker) Capacity() float64  { return r.capacity }

// Rank ranks projects against the configured capacity.
func (r *Ranker) Rank(projects []*store.Project) Ranking {
	return Rank(projects, r.scale, r.capacity)
}

// RankWithCapacity ranks projects against an explicit capacity.
func (r *Ranker) RankWithCapacity(projects []*store.Project, capacity float64) Ranking {
	return Rank(projects, r.scale, capacity)
}

// Rank scores each project as impact / effort weight (0 when the weight is
// 0), orders them by score descending keeping input order on ties, and then
// walks the ordered list accumulating effort weight. A project is over
// capacity when the running total, including its own weight, exceeds
// capacity; once one project is flagged every later one is too.
//
// The input slice is not reordered. Nil entries are skipped.
func Rank(projects []*store.Project, scale EffortScale, capacity float64) Ranking {
	ranked := make([]RankedProject, 0, len(projects))
	for _, p := range projects {
		if p == nil {
			continue
		}
		impact := ParseImpact(string(p.BizImpact))
		weight := scale.WeightOf(p.DevLoad)
		var score float64
		if weight > 0 {
			score = impact / float64(weight)
		}
		ranked = append(ranked, RankedProject{
			Project:      p,
			Impact:       impact,
			EffortWeight: weight,
			Score:        score,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	out := Ranking{Projects: ranked, Capacity: capacity}
	cumulative := 0
	for i := range ranked {
		cumulative += ranked[i].EffortWeight
		ranked[i].CumulativeWeight = cumulative
		ranked[i].OverCapacity = float64(cumulative) > capacity

		out.TotalScore = saturatingAdd(out.TotalScore, ranked[i].Score)
		if ranked[i].OverCapacity {
			out.OverCapacityCount++
		}
	}
	out.TotalWeight = cumulative
	return out
}

// saturatingAdd keeps the running total finite: individual scores are
// finite, but their sum can overflow, and an infinite total is not valid
// JSON.
func saturatingAdd(a, b float64) float64 {
	sum := a + b
	switch {
	case math.IsInf(sum, 1):
		return math.MaxFloat64
	case math.IsInf(sum, -1):
		return -math.MaxFloat64
	}
	return sum
}
