// Package checker answers "can this product be bought right now" for one URL.
package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/cache"
	"github.com/JakeFAU/restock-watch/internal/headless/pool"
	"github.com/JakeFAU/restock-watch/internal/metrics"
	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/telemetry"
)

// Leaser hands out rendering sessions.
type Leaser interface {
	Acquire(ctx context.Context, timeout time.Duration) (*pool.Lease, error)
}

// Limiter delays requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config tunes a Checker.
type Config struct {
	Keyword        string
	AcquireTimeout time.Duration
}

// Deps are the collaborators a Checker needs. Limiter and Tracer are optional.
type Deps struct {
	Cache    *cache.Results
	Prober   monitor.Prober
	Pool     Leaser
	Detector monitor.Detector
	Hasher   monitor.Hasher
	Clock    monitor.Clock
	Limiter  Limiter
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Checker runs the cache, probe, render and detect steps for one URL.
type Checker struct {
	cfg  Config
	deps Deps
}

// New validates deps and builds a Checker.
func New(cfg Config, deps Deps) (*Checker, error) {
	switch {
	case deps.Cache == nil:
		return nil, errors.New("checker requires a result cache")
	case deps.Prober == nil:
		return nil, errors.New("checker requires a prober")
	case deps.Pool == nil:
		return nil, errors.New("checker requires a session pool")
	case deps.Detector == nil:
		return nil, errors.New("checker requires a detector")
	case deps.Hasher == nil:
		return nil, errors.New("checker requires a hasher")
	case deps.Clock == nil:
		return nil, errors.New("checker requires a clock")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Tracer()
	}
	return &Checker{cfg: cfg, deps: deps}, nil
}

// Check runs one availability check. Failures are reported in CheckResult.Err.
func (c *Checker) Check(ctx context.Context, url string) monitor.CheckResult {
	start := c.deps.Clock.Now()
	ctx, span := c.deps.Tracer.Start(ctx, "checker.Check", trace.WithAttributes(
		attribute.String("url", url),
	))
	defer span.End()

	result := c.check(ctx, url)
	result.URL = url
	result.Latency = c.deps.Clock.Now().Sub(start)
	result.LatencyMs = result.Latency.Milliseconds()

	outcome := outcomeOf(result)
	metrics.ObserveCheck(metrics.SanitizeSite(url), outcome, result.Latency)
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("cached", result.Cached),
		attribute.String("strategy", result.Strategy),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}
	return result
}

func (c *Checker) check(ctx context.Context, url string) monitor.CheckResult {
	logger := c.deps.Logger.With(zap.String("url", url))

	reachable, fresh := c.deps.Cache.GetReachable(url)
	if fresh && !reachable {
		return monitor.CheckResult{Err: fmt.Errorf("%w: %s (cached)", monitor.ErrUnreachable, url)}
	}
	if snap, ok := c.deps.Cache.GetSnapshot(url); ok {
		return monitor.CheckResult{Available: snap.Available, Cached: true, Fingerprint: snap.Fingerprint}
	}
	if !fresh {
		if err := c.deps.Prober.Probe(ctx, url); err != nil {
			c.deps.Cache.PutReachable(url, false)
			if !errors.Is(err, monitor.ErrUnreachable) {
				err = fmt.Errorf("%w: %w", monitor.ErrUnreachable, err)
			}
			return monitor.CheckResult{Err: err}
		}
		c.deps.Cache.PutReachable(url, true)
	}

	if c.deps.Limiter != nil {
		if err := c.deps.Limiter.Wait(ctx, url); err != nil {
			return monitor.CheckResult{Err: err}
		}
	}

	lease, err := c.deps.Pool.Acquire(ctx, c.cfg.AcquireTimeout)
	if err != nil {
		return monitor.CheckResult{Err: err}
	}
	discard := false
	defer func() {
		if discard {
			lease.Discard()
			return
		}
		lease.Release()
	}()
	session := lease.Session()

	renderErr := session.Render(ctx, url)
	if renderErr != nil {
		logger.Warn("render incomplete, detecting on partial page", zap.Error(renderErr))
	}

	detection, err := c.deps.Detector.Detect(ctx, session, c.cfg.Keyword)
	if err != nil {
		if errors.Is(err, monitor.ErrSessionBroken) {
			discard = true
			logger.Warn("discarding session after capture failure", zap.Error(err))
		}
		return monitor.CheckResult{Err: errors.Join(renderErr, err)}
	}

	markup := []byte(detection.Markup)
	fingerprint, err := c.deps.Hasher.Hash(markup)
	if err != nil {
		logger.Warn("fingerprint failed", zap.Error(err))
	}
	available := detection.Verdict.Available()
	c.deps.Cache.PutSnapshot(url, cache.Snapshot{Available: available, Fingerprint: fingerprint})

	logger.Debug("check complete",
		zap.String("verdict", string(detection.Verdict)),
		zap.String("strategy", detection.Strategy),
	)
	return monitor.CheckResult{
		Available:   available,
		Verdict:     detection.Verdict,
		Strategy:    detection.Strategy,
		Fingerprint: fingerprint,
		Markup:      markup,
	}
}

func outcomeOf(result monitor.CheckResult) string {
	switch {
	case result.Err != nil:
		return metrics.OutcomeError
	case result.Cached:
		return metrics.OutcomeCached
	case result.Available:
		return metrics.OutcomeAvailable
	default:
		return metrics.OutcomeUnavailable
	}
}
