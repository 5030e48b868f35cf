// Package config loads the API server configuration from an optional YAML
// file with environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string    `yaml:"listenAddr"`
	DatabaseURL string    `yaml:"databaseUrl"`
	RedisURL    string    `yaml:"redisUrl"`
	Debug       bool      `yaml:"debug"`
	Solver      Solver    `yaml:"solver"`
	RateLimit   RateLimit `yaml:"rateLimit"`
}

// Solver holds default parameters passed to every solve unless the plan
// request overrides them.
type Solver struct {
	TimeLimitSec float64 `yaml:"timeLimitSec"`
	MIPGap       float64 `yaml:"mipGap"`
	Threads      int     `yaml:"threads"`
}

// RateLimit bounds plan submissions, which are the expensive operation.
type RateLimit struct {
	PlansPerMinute float64 `yaml:"plansPerMinute"`
	Burst          int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Solver: Solver{
			TimeLimitSec: 300,
			MIPGap:       0,
			Threads:      1,
		},
		RateLimit: RateLimit{
			PlansPerMinute: 6,
			Burst:          2,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty) on top of
// defaults, then applies PORT, DATABASE_URL and REDIS_URL from the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.Solver.TimeLimitSec <= 0 {
		return fmt.Errorf("solver.timeLimitSec must be > 0")
	}
	if c.Solver.MIPGap < 0 {
		return fmt.Errorf("solver.mipGap must be >= 0")
	}
	if c.RateLimit.PlansPerMinute <= 0 {
		return fmt.Errorf("rateLimit.plansPerMinute must be > 0")
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rateLimit.burst must be >= 1")
	}
	return nil
}

// SolverParams renders the configured solver defaults as the parameter map
// the design models accept.
func (c *Config) SolverParams() map[string]float64 {
	params := map[string]float64{
		"TimeLimit": c.Solver.TimeLimitSec,
	}
	if c.Solver.MIPGap > 0 {
		params["MIPGap"] = c.Solver.MIPGap
	}
	if c.Solver.Threads > 0 {
		params["Threads"] = float64(c.Solver.Threads)
	}
	return params
}
