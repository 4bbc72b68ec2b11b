package sandbox

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gradehouse/pkg/models"
)

// Labels applied to every sandbox container. The app label is the
// orphan-sweep key: any container carrying it belongs to this service.
const (
	LabelApp       = "app"
	LabelVersion   = "version"
	LabelLanguage  = "language"
	LabelPoolID    = "pool_id"
	LabelCreatedAt = "created_at"

	AppLabelValue = "gradehouse"
	appVersion    = "1"
)

// ResourceQuota defines hard limits for one sandbox container.
type ResourceQuota struct {
	MemoryBytes    int64
	CPUCores       float64
	PidsLimit      int64
	MaxOutputBytes int64
}

// PoolConfig configures one per-language pool.
type PoolConfig struct {
	Language models.Language
	Image    string

	// PoolSize is the idle floor the pool replenishes toward.
	PoolSize int
	// ScaleLimit caps idle+active combined.
	ScaleLimit int

	// IdleTimeout destroys idle sandboxes beyond the PoolSize floor.
	IdleTimeout time.Duration
	// RunningTimeout reclaims active sandboxes presumed stuck.
	RunningTimeout time.Duration

	// ExposePort publishes this container port to an ephemeral host
	// port; zero disables HTTP access.
	ExposePort int

	Quota ResourceQuota

	// User is the uid:gid commands run as inside the container.
	User string

	// WorkDir is the writable directory files are staged into.
	WorkDir string
	// ScratchDir is the non-executable scratch mount.
	ScratchDir string
	// WorkDirSize / ScratchSize size the tmpfs mounts.
	WorkDirSize string
	ScratchSize string

	// CommandTimeout bounds a single RunCommand when the caller gives none.
	CommandTimeout time.Duration
}

// ManagerConfig configures the multi-language sandbox manager.
type ManagerConfig struct {
	DockerHost string

	// GVisorRuntime is used when available; empty string falls back to
	// the engine default (runc). This is the single fallback path.
	GVisorRuntime string

	MonitorInterval time.Duration

	Pools map[models.Language]PoolConfig
}

// DefaultPoolConfig returns the production defaults for one language.
func DefaultPoolConfig(lang models.Language) PoolConfig {
	return PoolConfig{
		Language:       lang,
		Image:          defaultImage(lang),
		PoolSize:       envInt("SANDBOX_POOL_SIZE", 2),
		ScaleLimit:     envInt("SANDBOX_SCALE_LIMIT", 4),
		IdleTimeout:    10 * time.Minute,
		RunningTimeout: 5 * time.Minute,
		Quota: ResourceQuota{
			MemoryBytes:    128 * 1024 * 1024,
			CPUCores:       0.5,
			PidsLimit:      64,
			MaxOutputBytes: 1 << 20,
		},
		User:           "65534:65534",
		WorkDir:        "/work",
		ScratchDir:     "/tmp",
		WorkDirSize:    "64m",
		ScratchSize:    "32m",
		CommandTimeout: 30 * time.Second,
	}
}

// DefaultManagerConfig returns a production-biased manager configuration
// with one pool per supported language.
func DefaultManagerConfig() ManagerConfig {
	pools := make(map[models.Language]PoolConfig, len(models.Languages()))
	for _, lang := range models.Languages() {
		pools[lang] = DefaultPoolConfig(lang)
	}
	return ManagerConfig{
		DockerHost:      envOr("DOCKER_HOST", "unix:///var/run/docker.sock"),
		GVisorRuntime:   envOr("SANDBOX_GVISOR_RUNTIME", "runsc"),
		MonitorInterval: time.Second,
		Pools:           pools,
	}
}

func defaultImage(lang models.Language) string {
	switch lang {
	case models.LangPython:
		return "python:3.12-slim-bookworm"
	case models.LangJava:
		return "eclipse-temurin:21-jdk-jammy"
	case models.LangNode:
		return "node:20-slim"
	case models.LangCpp:
		return "gcc:13-bookworm"
	default:
		return "debian:bookworm-slim"
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
