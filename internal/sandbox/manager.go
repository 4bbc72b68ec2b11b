package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gradehouse/internal/logging"
	"gradehouse/internal/metrics"
	"gradehouse/pkg/models"
)

// Manager is the process-wide facade over the per-language pools. It is
// built once at the composition root and passed down to the pipeline.
type Manager struct {
	cfg     ManagerConfig
	runtime Runtime
	pools   map[models.Language]*LanguagePool

	stopMonitor chan struct{}
	monitorDone chan struct{}

	shutdownOnce sync.Once
	closed       bool
	mu           sync.RWMutex
}

// NewManager sweeps orphaned containers left by a prior process,
// constructs one pool per configured language, warms them, and starts
// the background monitor.
func NewManager(ctx context.Context, cfg ManagerConfig, rt Runtime) (*Manager, error) {
	if rt == nil {
		return nil, fmt.Errorf("sandbox runtime is required")
	}
	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("at least one language pool must be configured")
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Second
	}

	m := &Manager{
		cfg:         cfg,
		runtime:     rt,
		pools:       make(map[models.Language]*LanguagePool, len(cfg.Pools)),
		stopMonitor: make(chan struct{}),
		monitorDone: make(chan struct{}),
	}

	m.sweepOrphans(ctx)

	for lang, poolCfg := range cfg.Pools {
		pool := NewLanguagePool(poolCfg, rt)
		m.pools[lang] = pool
		pool.Replenish(ctx)
	}

	go m.monitorLoop()
	return m, nil
}

// sweepOrphans destroys every container bearing the app label. Failures
// are logged and non-fatal; startup proceeds regardless.
func (m *Manager) sweepOrphans(ctx context.Context) {
	ids, err := m.runtime.ListLabeled(ctx, LabelApp+"="+AppLabelValue)
	if err != nil {
		logging.L().Warn("orphan sweep listing failed", zap.Error(err))
		return
	}
	removed := 0
	for _, id := range ids {
		if err := m.runtime.Destroy(ctx, id); err != nil {
			logging.L().Warn("orphan container destroy failed",
				zap.String("container", id), zap.Error(err))
			continue
		}
		removed++
	}
	if len(ids) > 0 {
		logging.L().Info("orphan sweep complete",
			zap.Int("found", len(ids)), zap.Int("removed", removed))
	}
}

func (m *Manager) monitorLoop() {
	defer close(m.monitorDone)
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopMonitor:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.MonitorInterval*30)
			for lang, pool := range m.pools {
				pool.Monitor(ctx)
				stats := pool.Stats()
				metrics.Get().SandboxesIdle.WithLabelValues(string(lang)).Set(float64(stats.Idle))
				metrics.Get().SandboxesActive.WithLabelValues(string(lang)).Set(float64(stats.Active))
			}
			cancel()
		}
	}
}

// GetSandbox acquires a sandbox for the language.
func (m *Manager) GetSandbox(lang models.Language) (*Sandbox, error) {
	m.mu.RLock()
	closed := m.closed
	pool, ok := m.pools[lang]
	m.mu.RUnlock()

	if closed {
		return nil, ErrShutdown
	}
	if !ok {
		return nil, fmt.Errorf("no sandbox pool for language %q", lang)
	}
	return pool.Acquire()
}

// ReleaseSandbox returns a sandbox to its pool for destruction.
func (m *Manager) ReleaseSandbox(ctx context.Context, lang models.Language, sb *Sandbox) {
	m.mu.RLock()
	pool, ok := m.pools[lang]
	m.mu.RUnlock()
	if !ok {
		return
	}
	pool.Release(ctx, sb)
}

// Pool exposes a language pool, mainly for diagnostics endpoints.
func (m *Manager) Pool(lang models.Language) (*LanguagePool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[lang]
	return pool, ok
}

// Shutdown stops the monitor and destroys every container in every
// pool. Idempotent; invoked from the lifecycle hook and from signal
// handlers. New acquisitions fail fast afterwards.
func (m *Manager) Shutdown(ctx context.Context) {
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		close(m.stopMonitor)
		select {
		case <-m.monitorDone:
		case <-time.After(5 * time.Second):
			logging.L().Warn("sandbox monitor did not stop in time")
		}

		for lang, pool := range m.pools {
			pool.Shutdown(ctx)
			logging.L().Info("sandbox pool shut down", zap.String("language", string(lang)))
		}
	})
}
