// Package planner keeps the published view of the portfolio ranking fresh.
// It re-ranks the stored projects on a ticker and whenever a project event
// arrives, and publishes a snapshot only when the ranked order or the
// capacity cut-off moved.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/Portfolio/internal/hermes"
	"github.com/MikeSquared-Agency/Portfolio/internal/metrics"
	"github.com/MikeSquared-Agency/Portfolio/internal/scoring"
	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

type Planner struct {
	store    store.Store
	hermes   hermes.Client
	ranker   *scoring.Ranker
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	signature string

	trigger  chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(s store.Store, h hermes.Client, r *scoring.Ranker, interval time.Duration, logger *slog.Logger) *Planner {
	return &Planner{
		store:    s,
		hermes:   h,
		ranker:   r,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

func (p *Planner) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

func (p *Planner) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Trigger asks for a re-rank as soon as the loop is free. Calls made while
// one is already pending are coalesced.
func (p *Planner) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// SetupSubscriptions re-ranks whenever a project is created, edited or
// removed, wherever that happened.
func (p *Planner) SetupSubscriptions() {
	if p.hermes == nil {
		return
	}
	for _, subject := range []string{
		hermes.SubjectProjectCreatedAll,
		hermes.SubjectProjectUpdatedAll,
		hermes.SubjectProjectDeletedAll,
	} {
		if err := p.hermes.Subscribe(subject, func(subject string, _ []byte) {
			p.logger.Debug("project event, re-ranking", "subject", subject, "project_id", hermes.ProjectIDFromSubject(subject))
			p.Trigger()
		}); err != nil {
			p.logger.Warn("failed to subscribe", "subject", subject, "error", err)
		}
	}
}

func (p *Planner) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.replanLogged(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.replanLogged(ctx)
		case <-p.trigger:
			p.replanLogged(ctx)
		}
	}
}

func (p *Planner) replanLogged(ctx context.Context) {
	if _, err := p.Replan(ctx); err != nil {
		p.logger.Error("replan failed", "error", err)
	}
}

// Replan ranks the stored portfolio and publishes it if it differs from the
// last published ranking. It reports whether a snapshot was published.
func (p *Planner) Replan(ctx context.Context) (bool, error) {
	projects, err := store.ListAllProjects(ctx, p.store, store.ProjectFilter{})
	if err != nil {
		return false, fmt.Errorf("list projects: %w", err)
	}

	start := time.Now()
	ranking := p.ranker.Rank(projects)
	metrics.ObserveRanking(metrics.SourcePlanner, time.Since(start))
	metrics.SetPortfolio(ranking)

	sig := signature(ranking)
	p.mu.Lock()
	changed := sig != p.signature
	if changed {
		p.signature = sig
	}
	p.mu.Unlock()

	if !changed {
		return false, nil
	}

	p.logger.Info("ranking changed",
		"projects", len(ranking.Projects),
		"over_capacity", ranking.OverCapacityCount,
		"total_weight", ranking.TotalWeight,
		"capacity", ranking.Capacity,
	)

	if p.hermes == nil {
		return false, nil
	}
	evt := hermes.RankingUpdatedEvent{
		ProjectIDs:        ranking.IDs(),
		OverCapacityIDs:   ranking.OverCapacityIDs(),
		Capacity:          ranking.Capacity,
		TotalScore:        ranking.TotalScore,
		TotalWeight:       ranking.TotalWeight,
		OverCapacityCount: ranking.OverCapacityCount,
		Timestamp:         time.Now().UTC(),
	}
	if evt.OverCapacityIDs == nil {
		evt.OverCapacityIDs = []string{}
	}
	if err := p.hermes.PublishRankingUpdated(evt); err != nil {
		// let the next tick try again
		p.mu.Lock()
		p.signature = ""
		p.mu.Unlock()
		return false, fmt.Errorf("publish ranking: %w", err)
	}
	return true, nil
}

// signature identifies what consumers of the ranking care about: the order
// and where the capacity line falls.
func signature(r scoring.Ranking) string {
	var b strings.Builder
	for _, rp := range r.Projects {
		b.WriteString(rp.ID.String())
		if rp.OverCapacity {
			b.WriteByte('!')
		}
		b.WriteByte(',')
	}
	fmt.Fprintf(&b, "|%g", r.Capacity)
	return b.String()
}
