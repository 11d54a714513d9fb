package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Portfolio/internal/api"
	"github.com/MikeSquared-Agency/Portfolio/internal/config"
	"github.com/MikeSquared-Agency/Portfolio/internal/hermes"
	"github.com/MikeSquared-Agency/Portfolio/internal/planner"
	"github.com/MikeSquared-Agency/Portfolio/internal/projectsapi"
	"github.com/MikeSquared-Agency/Portfolio/internal/scoring"
	"github.com/MikeSquared-Agency/Portfolio/internal/store"
)

const defaultSQLitePath = "portfolio.db"

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("portfolio.yaml"); err == nil {
			path = "portfolio.yaml"
		}
	}
	return config.Load(path)
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown logging format %q", cfg.Format)
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		path := cfg.URL
		if path == "" {
			path = defaultSQLitePath
		}
		return store.NewSQLiteStore(path)
	default:
		if cfg.URL == "" {
			return nil, errors.New("database url required for postgres")
		}
		return store.NewPostgresStore(ctx, cfg.URL)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Events are optional
	var hermesClient hermes.Client
	if cfg.NATS.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to nats, running without events", "error", err)
		} else {
			hermesClient = hc
			defer hc.Close()
			logger.Info("connected to nats")
		}
	}

	ranker := scoring.NewRanker(cfg.Ranking.EffortWeights, cfg.Ranking.Capacity)

	deps := api.Deps{
		Store:             db,
		Hermes:            hermesClient,
		Ranker:            ranker,
		AdminToken:        cfg.Server.AdminToken,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		Logger:            logger,
	}

	if cfg.Planner.Enabled {
		p := planner.New(db, hermesClient, ranker, cfg.PlannerInterval(), logger)
		p.SetupSubscriptions()
		p.Start(ctx)
		defer p.Stop()
		deps.Replanner = p
		logger.Info("planner started", "interval", cfg.PlannerInterval())
	}

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           api.NewMetricsRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("server error", "error", serveErr)
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	cancel()

	logger.Info("shutdown complete")
	return serveErr
}

type rankOptions struct {
	file        string
	apiURL      string
	token       string
	capacity    float64
	capacitySet bool
	json        bool
}

func runRank(ctx context.Context, out io.Writer, opts rankOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	capacity := cfg.Ranking.Capacity
	if opts.capacitySet {
		if math.IsNaN(opts.capacity) || math.IsInf(opts.capacity, 0) || opts.capacity < 0 {
			return fmt.Errorf("capacity must be a finite non-negative number, got %v", opts.capacity)
		}
		capacity = opts.capacity
	}

	var projects []*store.Project
	if opts.apiURL != "" {
		projects, err = projectsapi.NewHTTPClient(opts.apiURL, opts.token).ListProjects(ctx)
	} else {
		projects, err = readProjectsFile(opts.file)
	}
	if err != nil {
		return err
	}

	ranking := scoring.Rank(projects, cfg.Ranking.EffortWeights, capacity)

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ranking)
	}
	return writeRankingTable(out, ranking)
}

func runSeed(ctx context.Context, out io.Writer, file, apiURL, token string) error {
	projects, err := readProjectsFile(file)
	if err != nil {
		return err
	}

	client := projectsapi.NewHTTPClient(apiURL, token)
	created := 0
	for _, p := range projects {
		if p == nil {
			continue
		}
		saved, err := client.CreateProject(ctx, p)
		if err != nil {
			return fmt.Errorf("create %q: %w", p.Title, err)
		}
		created++
		fmt.Fprintf(out, "created %s  %s\n", saved.ID, saved.Title)
	}
	fmt.Fprintf(out, "\nseeded %d projects into %s\n", created, apiURL)
	return nil
}

func runMigrate(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(os.Stderr, "schema applied (%s)\n", cfg.Database.Driver)
	return nil
}

// projectsFile accepts either a bare list or {"projects": [...]}.
type projectsFile struct {
	Projects *[]*store.Project `json:"projects" yaml:"projects"`
}

// readProjectsFile loads projects from JSON, or YAML when the file ends in
// .yaml or .yml. A path of "-" reads JSON from stdin.
func readProjectsFile(path string) ([]*store.Project, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return decodeProjects(data, yaml.Unmarshal)
	}
	return decodeProjects(data, json.Unmarshal)
}

func decodeProjects(data []byte, unmarshal func([]byte, interface{}) error) ([]*store.Project, error) {
	var list []*store.Project
	listErr := unmarshal(data, &list)
	if listErr == nil {
		return list, nil
	}
	var wrapped projectsFile
	if err := unmarshal(data, &wrapped); err != nil || wrapped.Projects == nil {
		return nil, fmt.Errorf("parse projects: %w", listErr)
	}
	return *wrapped.Projects, nil
}

func writeRankingTable(out io.Writer, r scoring.Ranking) error {
	if len(r.Projects) == 0 {
		fmt.Fprintln(out, "no projects to rank")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCORE\tIMPACT\tEFFORT\tCUMULATIVE\tCAPACITY\tTITLE")
	for i, p := range r.Projects {
		status := "ok"
		if p.OverCapacity {
			status = "OVER"
		}
		effort := p.DevLoad
		if effort == "" {
			effort = "-"
		}
		fmt.Fprintf(w, "%d\t%.2f\t%g\t%s (%d)\t%d\t%s\t%s\n",
			i+1, p.Score, p.Impact, effort, p.EffortWeight, p.CumulativeWeight, status, p.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\ntotal score %.2f, total effort %d, capacity %g, %d over capacity\n",
		r.TotalScore, r.TotalWeight, r.Capacity, r.OverCapacityCount)
	return nil
}
