package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Portfolio/internal/scoring"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Planner  PlannerConfig  `yaml:"planner"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port              int    `yaml:"port"`
	MetricsPort       int    `yaml:"metrics_port"`
	AdminToken        string `yaml:"admin_token"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // postgres or sqlite
	URL         string `yaml:"url"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type RankingConfig struct {
	Capacity      float64             `yaml:"capacity"`
	EffortWeights scoring.EffortScale `yaml:"effort_weights"`
}

type PlannerConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMs int  `yaml:"interval_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) PlannerInterval() time.Duration {
	return time.Duration(c.Planner.IntervalMs) * time.Millisecond
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              8700,
			MetricsPort:       8701,
			RequestsPerMinute: 120,
		},
		Database: DatabaseConfig{
			Driver:      "postgres",
			AutoMigrate: true,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Ranking: RankingConfig{
			Capacity:      scoring.DefaultCapacity,
			EffortWeights: scoring.DefaultEffortScale(),
		},
		Planner: PlannerConfig{
			Enabled:    true,
			IntervalMs: 30000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the service cannot run without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if math.IsNaN(c.Ranking.Capacity) || math.IsInf(c.Ranking.Capacity, 0) || c.Ranking.Capacity < 0 {
		return fmt.Errorf("ranking capacity must be a finite non-negative number, got %v", c.Ranking.Capacity)
	}
	if err := c.Ranking.EffortWeights.Validate(); err != nil {
		return fmt.Errorf("ranking effort_weights: %w", err)
	}
	if c.Planner.Enabled && c.Planner.IntervalMs <= 0 {
		return fmt.Errorf("planner interval_ms must be positive, got %d", c.Planner.IntervalMs)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORTFOLIO_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("PORTFOLIO_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("PORTFOLIO_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("PORTFOLIO_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("PORTFOLIO_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("PORTFOLIO_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PORTFOLIO_CAPACITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.Capacity = f
		}
	}
	if v := os.Getenv("PORTFOLIO_PLANNER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Planner.Enabled = b
		}
	}
	if v := os.Getenv("PORTFOLIO_PLANNER_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Planner.IntervalMs = n
		}
	}
	if v := os.Getenv("PORTFOLIO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORTFOLIO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
