package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gradehouse/internal/logging"
	"gradehouse/internal/metrics"
)

// LanguagePool maintains a bounded set of pre-warmed containers for one
// language. Sandboxes are always in exactly one of idle or active; a
// released sandbox is destroyed, never reused, so isolation between
// submissions rests on destruction rather than cleanup.
type LanguagePool struct {
	cfg     PoolConfig
	runtime Runtime
	poolID  string

	mu     sync.Mutex
	idle   []*Sandbox
	active map[string]*Sandbox
	closed bool
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	Idle   int
	Active int
}

// NewLanguagePool constructs a pool. Call Replenish (directly or via the
// manager) to warm it.
func NewLanguagePool(cfg PoolConfig, rt Runtime) *LanguagePool {
	return &LanguagePool{
		cfg:     cfg,
		runtime: rt,
		poolID:  uuid.New().String()[:8],
		active:  make(map[string]*Sandbox),
	}
}

// Acquire pops the oldest idle sandbox, marks it busy, and moves it to
// the active set. FIFO order gives fairness over the warm containers.
func (p *LanguagePool) Acquire() (*Sandbox, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrShutdown
	}
	if len(p.idle) == 0 {
		metrics.Get().PoolExhaustedTotal.WithLabelValues(string(p.cfg.Language)).Inc()
		return nil, ErrPoolExhausted
	}

	sb := p.idle[0]
	p.idle = p.idle[1:]
	sb.State = StateBusy
	sb.LastPickedAt = time.Now()
	p.active[sb.ID] = sb
	return sb, nil
}

// Release removes the sandbox from the active set, destroys its
// container, and triggers replenishment. Destruction happens outside
// the lock to bound the critical section.
func (p *LanguagePool) Release(ctx context.Context, sb *Sandbox) {
	if sb == nil {
		return
	}

	p.mu.Lock()
	_, tracked := p.active[sb.ID]
	delete(p.active, sb.ID)
	closed := p.closed
	p.mu.Unlock()

	if !tracked {
		return
	}

	if err := sb.destroy(ctx); err != nil {
		logging.L().Warn("sandbox destroy failed on release",
			zap.String("language", string(p.cfg.Language)),
			zap.String("sandbox", sb.ID), zap.Error(err))
	}

	if !closed {
		p.Replenish(ctx)
	}
}

// WithSandbox acquires a sandbox, runs fn, and guarantees release on
// every exit path including panics.
func (p *LanguagePool) WithSandbox(ctx context.Context, fn func(*Sandbox) error) error {
	sb, err := p.Acquire()
	if err != nil {
		return err
	}
	defer p.Release(ctx, sb)
	return fn(sb)
}

// Replenish creates fresh containers until the idle floor is met or the
// scale limit is reached. Per-container creation errors are logged and
// swallowed; the pool keeps whatever it managed to warm.
func (p *LanguagePool) Replenish(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.closed || len(p.idle) >= p.cfg.PoolSize || len(p.idle)+len(p.active) >= p.cfg.ScaleLimit {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		sb, err := p.createSandbox(ctx)
		if err != nil {
			logging.L().Warn("sandbox create failed during replenish",
				zap.String("language", string(p.cfg.Language)), zap.Error(err))
			return
		}

		p.mu.Lock()
		if p.closed || len(p.idle) >= p.cfg.PoolSize || len(p.idle)+len(p.active) >= p.cfg.ScaleLimit {
			// Raced past the limit while creating; discard the extra.
			p.mu.Unlock()
			_ = sb.destroy(ctx)
			return
		}
		p.idle = append(p.idle, sb)
		p.mu.Unlock()
	}
}

func (p *LanguagePool) createSandbox(ctx context.Context) (*Sandbox, error) {
	id := uuid.New().String()
	spec := ContainerSpec{
		Name:        fmt.Sprintf("%s-%s-%s", AppLabelValue, p.cfg.Language, id[:12]),
		Image:       p.cfg.Image,
		User:        p.cfg.User,
		WorkDir:     p.cfg.WorkDir,
		ScratchDir:  p.cfg.ScratchDir,
		WorkDirSize: p.cfg.WorkDirSize,
		ScratchSize: p.cfg.ScratchSize,
		ExposePort:  p.cfg.ExposePort,
		Quota:       p.cfg.Quota,
		Labels: map[string]string{
			LabelApp:       AppLabelValue,
			LabelVersion:   appVersion,
			LabelLanguage:  string(p.cfg.Language),
			LabelPoolID:    p.poolID,
			LabelCreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}

	handle, err := p.runtime.Create(ctx, spec)
	if err != nil {
		return nil, err
	}
	metrics.Get().SandboxCreatesTotal.WithLabelValues(string(p.cfg.Language)).Inc()
	return newSandbox(id, p.cfg.Language, handle, p.runtime, p.cfg), nil
}

// Monitor enforces TTLs and tops the pool back up. Active sandboxes
// whose last pick is older than RunningTimeout are presumed stuck and
// forcibly released; idle sandboxes past IdleTimeout are destroyed, but
// only down to the PoolSize floor.
func (p *LanguagePool) Monitor(ctx context.Context) {
	now := time.Now()

	p.mu.Lock()
	var stuck []*Sandbox
	for _, sb := range p.active {
		if p.cfg.RunningTimeout > 0 && now.Sub(sb.LastPickedAt) > p.cfg.RunningTimeout {
			stuck = append(stuck, sb)
		}
	}
	for _, sb := range stuck {
		delete(p.active, sb.ID)
	}

	var stale []*Sandbox
	if p.cfg.IdleTimeout > 0 {
		kept := p.idle[:0]
		for _, sb := range p.idle {
			if len(p.idle)-len(stale) > p.cfg.PoolSize && now.Sub(sb.CreatedAt) > p.cfg.IdleTimeout {
				stale = append(stale, sb)
				continue
			}
			kept = append(kept, sb)
		}
		p.idle = kept
	}
	p.mu.Unlock()

	for _, sb := range stuck {
		logging.L().Warn("reclaiming stuck sandbox",
			zap.String("language", string(p.cfg.Language)),
			zap.String("sandbox", sb.ID),
			zap.Duration("age", now.Sub(sb.LastPickedAt)))
		if err := sb.destroy(ctx); err != nil {
			logging.L().Warn("stuck sandbox destroy failed", zap.Error(err))
		}
	}
	for _, sb := range stale {
		if err := sb.destroy(ctx); err != nil {
			logging.L().Warn("stale sandbox destroy failed", zap.Error(err))
		}
	}

	p.Replenish(ctx)
}

// Stats snapshots current occupancy.
func (p *LanguagePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Idle: len(p.idle), Active: len(p.active)}
}

// Shutdown drains both sets and destroys every container. Idempotent.
func (p *LanguagePool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	doomed := make([]*Sandbox, 0, len(p.idle)+len(p.active))
	doomed = append(doomed, p.idle...)
	for _, sb := range p.active {
		doomed = append(doomed, sb)
	}
	p.idle = nil
	p.active = make(map[string]*Sandbox)
	p.mu.Unlock()

	for _, sb := range doomed {
		if err := sb.destroy(ctx); err != nil {
			logging.L().Warn("sandbox destroy failed during shutdown",
				zap.String("sandbox", sb.ID), zap.Error(err))
		}
	}
}
