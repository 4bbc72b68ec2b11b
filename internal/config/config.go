// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gradehouse/internal/pipeline"
	"gradehouse/pkg/models"
)

// Config is the top-level service configuration.
type Config struct {
	Port        int
	Environment string

	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurst     int

	// GradingTimeout bounds one whole pipeline run.
	GradingTimeout time.Duration
	StatusCacheTTL time.Duration

	// PreflightFile optionally points at a YAML file with per-language
	// preflight checks.
	PreflightFile string
}

// Load reads configuration from environment variables with defaults
// suited to local development.
func Load() *Config {
	cfg := &Config{
		Port:               8080,
		Environment:        "development",
		AllowedOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		RateLimitPerMinute: 300,
		RateLimitBurst:     30,
		GradingTimeout:     5 * time.Minute,
		StatusCacheTTL:     10 * time.Minute,
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}
	if limit := os.Getenv("RATE_LIMIT_PER_MINUTE"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if n, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if timeout := os.Getenv("GRADING_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.GradingTimeout = d
		}
	}
	if ttl := os.Getenv("STATUS_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.StatusCacheTTL = d
		}
	}
	cfg.PreflightFile = os.Getenv("PREFLIGHT_FILE")

	return cfg
}

// LoadPreflight reads the per-language preflight checks. A missing
// file yields an empty config, not an error; no checks is the normal
// case for fresh deployments.
func LoadPreflight(path string) (pipeline.PreflightConfig, error) {
	if path == "" {
		return pipeline.PreflightConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pipeline.PreflightConfig{}, nil
		}
		return nil, fmt.Errorf("read preflight config: %w", err)
	}

	raw := map[string]pipeline.LanguagePreflight{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse preflight config: %w", err)
	}

	out := pipeline.PreflightConfig{}
	for name, checks := range raw {
		lang, err := models.ParseLanguage(name)
		if err != nil {
			return nil, fmt.Errorf("preflight config: %w", err)
		}
		out[lang] = checks
	}
	return out, nil
}
