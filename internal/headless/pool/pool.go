// Package pool bounds concurrent page rendering through a fixed set of reusable sessions.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/restock-watch/internal/metrics"
	"github.com/JakeFAU/restock-watch/internal/monitor"
)

// Config sizes the pool and bounds every wait it performs.
type Config struct {
	// Capacity is the maximum number of concurrently leased sessions.
	Capacity int
	// WarmSize sessions are created up front.
	WarmSize int
	// AcquireTimeout is used when Acquire is called without a timeout.
	AcquireTimeout time.Duration
	// IdleWait bounds how long a permit holder waits for a returned session
	// before creating a new one.
	IdleWait     time.Duration
	PingTimeout  time.Duration
	ResetTimeout time.Duration
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Leased   int64
	Idle     int
	Acquired int64
	Created  int64
	Replaced int64
	Busy     int64
}

// Pool leases rendering sessions. The permit count, not the idle queue length,
// is what caps concurrent leases at Capacity.
type Pool struct {
	cfg     Config
	factory monitor.SessionFactory
	permits *semaphore.Weighted
	idle    chan monitor.Session
	logger  *zap.Logger

	// mu orders idle pushes against shutdown so no session is queued after the drain.
	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once

	leased   atomic.Int64
	acquired atomic.Int64
	created  atomic.Int64
	replaced atomic.Int64
	busy     atomic.Int64
}

// New builds a pool and warms it with cfg.WarmSize sessions. Warm-up failures are
// logged and the missing sessions are created on demand later.
func New(ctx context.Context, cfg Config, factory monitor.SessionFactory, logger *zap.Logger) (*Pool, error) {
	if factory == nil {
		return nil, errors.New("session factory is required")
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("pool capacity must be > 0, got %d", cfg.Capacity)
	}
	if cfg.WarmSize > cfg.Capacity {
		cfg.WarmSize = cfg.Capacity
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 15 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		cfg:     cfg,
		factory: factory,
		permits: semaphore.NewWeighted(int64(cfg.Capacity)),
		idle:    make(chan monitor.Session, cfg.Capacity),
		logger:  logger,
	}
	for i := 0; i < cfg.WarmSize; i++ {
		session, err := p.create(ctx)
		if err != nil {
			p.logger.Warn("warm-up session failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		p.idle <- session
	}
	p.logger.Info("session pool ready",
		zap.Int("capacity", cfg.Capacity),
		zap.Int("idle", len(p.idle)),
	)
	return p, nil
}

// Acquire leases a healthy session, waiting at most timeout for a permit.
// It returns monitor.ErrPoolExhausted when no permit frees up in time.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	if p.closed.Load() {
		return nil, monitor.ErrPoolClosed
	}
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.permits.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquire session: %w", ctx.Err())
		}
		p.busy.Add(1)
		metrics.ObservePoolBusy()
		return nil, fmt.Errorf("%w: no session within %s", monitor.ErrPoolExhausted, timeout)
	}

	session, err := p.checkout(ctx, waitCtx)
	if err != nil {
		p.permits.Release(1)
		return nil, err
	}
	if p.closed.Load() {
		p.closeSession(session)
		p.permits.Release(1)
		return nil, monitor.ErrPoolClosed
	}

	p.leased.Add(1)
	p.acquired.Add(1)
	metrics.IncLeased()
	return &Lease{pool: p, session: session}, nil
}

// Shutdown stops new leases and closes every idle session. Sessions still leased
// are closed when they are released. Safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed.Store(true)
		drained := p.drainIdle()
		p.mu.Unlock()

		g, _ := errgroup.WithContext(ctx)
		for _, session := range drained {
			g.Go(func() error {
				metrics.ObserveSessionEvent("closed")
				if closeErr := session.Close(); closeErr != nil {
					return fmt.Errorf("close session: %w", closeErr)
				}
				return nil
			})
		}
		err = g.Wait()
		p.logger.Info("session pool shut down", zap.Int("closed", len(drained)))
	})
	return err
}

// Stats reports current usage.
func (p *Pool) Stats() Stats {
	return Stats{
		Leased:   p.leased.Load(),
		Idle:     len(p.idle),
		Acquired: p.acquired.Load(),
		Created:  p.created.Load(),
		Replaced: p.replaced.Load(),
		Busy:     p.busy.Load(),
	}
}

// Capacity returns the maximum number of concurrent leases.
func (p *Pool) Capacity() int {
	return p.cfg.Capacity
}

func (p *Pool) checkout(ctx, waitCtx context.Context) (monitor.Session, error) {
	session := p.takeIdle(waitCtx)
	if session == nil {
		created, err := p.create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return created, nil
	}
	if err := p.ping(ctx, session); err != nil {
		p.logger.Warn("session failed health check, replacing", zap.Error(err))
		p.closeSession(session)
		replacement, createErr := p.create(ctx)
		if createErr != nil {
			return nil, fmt.Errorf("replace session: %w", createErr)
		}
		p.replaced.Add(1)
		metrics.ObserveSessionEvent("replaced")
		return replacement, nil
	}
	return session, nil
}

func (p *Pool) takeIdle(waitCtx context.Context) monitor.Session {
	select {
	case s := <-p.idle:
		return s
	default:
	}
	if p.cfg.IdleWait <= 0 {
		return nil
	}
	timer := time.NewTimer(p.cfg.IdleWait)
	defer timer.Stop()
	select {
	case s := <-p.idle:
		return s
	case <-timer.C:
		return nil
	case <-waitCtx.Done():
		return nil
	}
}

func (p *Pool) create(ctx context.Context) (monitor.Session, error) {
	session, err := p.factory.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	p.created.Add(1)
	metrics.ObserveSessionEvent("created")
	return session, nil
}

func (p *Pool) ping(ctx context.Context, session monitor.Session) error {
	pingCtx, cancel := context.WithTimeout(ctx, p.cfg.PingTimeout)
	defer cancel()
	if err := session.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping session: %w", err)
	}
	return nil
}

func (p *Pool) release(session monitor.Session, discard bool) {
	defer func() {
		p.leased.Add(-1)
		metrics.DecLeased()
		p.permits.Release(1)
	}()
	if session == nil {
		return
	}
	if discard {
		p.closeSession(session)
		return
	}

	resetCtx, cancel := context.WithTimeout(context.Background(), p.cfg.ResetTimeout)
	err := session.Reset(resetCtx)
	cancel()
	if err != nil {
		p.logger.Warn("session reset failed, closing", zap.Error(err))
		p.closeSession(session)
		return
	}

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		p.closeSession(session)
		return
	}
	select {
	case p.idle <- session:
		p.mu.Unlock()
		return
	default:
	}
	p.mu.Unlock()
	p.closeSession(session)
}

func (p *Pool) drainIdle() []monitor.Session {
	var drained []monitor.Session
	for {
		select {
		case s := <-p.idle:
			drained = append(drained, s)
		default:
			return drained
		}
	}
}

func (p *Pool) closeSession(session monitor.Session) {
	metrics.ObserveSessionEvent("closed")
	if err := session.Close(); err != nil {
		p.logger.Debug("session close failed", zap.Error(err))
	}
}

// Lease is one checked-out session. Exactly one of Release or Discard takes
// effect; later calls are no-ops, so the permit goes back exactly once.
type Lease struct {
	pool    *Pool
	session monitor.Session
	once    sync.Once
}

// Session returns the leased session.
func (l *Lease) Session() monitor.Session {
	return l.session
}

// Release resets the session and returns it to the pool.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.release(l.session, false)
	})
}

// Discard closes the session instead of returning it, for sessions left in a bad state.
func (l *Lease) Discard() {
	l.once.Do(func() {
		l.pool.release(l.session, true)
	})
}
