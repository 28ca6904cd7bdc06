// Package service implements the control surface operations over the monitor core.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/headless/pool"
	"github.com/JakeFAU/restock-watch/internal/id/uuid"
	"github.com/JakeFAU/restock-watch/internal/logging"
	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/worker"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	defaultIterations   = 5
	maxIterations       = 20
)

// Checker runs one availability check.
type Checker interface {
	Check(ctx context.Context, url string) monitor.CheckResult
}

// Processor runs a full check cycle for one target.
type Processor interface {
	Process(ctx context.Context, target monitor.Target) worker.Outcome
}

// Scheduler exposes the tier bookkeeping and per-target claims the control
// surface needs.
type Scheduler interface {
	Claim(targetID string) bool
	Release(targetID string)
	Forget(targetID string)
	TierCounts() map[monitor.Tier]int
}

// SessionPool reports rendering session usage.
type SessionPool interface {
	Stats() pool.Stats
	Capacity() int
}

// Config controls validation.
type Config struct {
	AllowedHosts []string
}

// Deps are the Service's collaborators.
type Deps struct {
	Store     monitor.TargetStore
	Scheduler Scheduler
	Processor Processor
	Checker   Checker
	IDs       monitor.IDGenerator
	Clock     monitor.Clock
	// Sessions is optional; Stats omits session usage without it.
	Sessions SessionPool
}

// AddRequest describes a new target.
type AddRequest struct {
	URL   string `json:"url"`
	Name  string `json:"name,omitempty"`
	Owner string `json:"owner"`
}

// BenchmarkResult summarizes repeated checks of one URL.
type BenchmarkResult struct {
	URL          string  `json:"url"`
	Iterations   int     `json:"iterations"`
	Available    int     `json:"available"`
	Errors       int     `json:"errors"`
	MinLatencyMs int64   `json:"min_latency_ms"`
	MaxLatencyMs int64   `json:"max_latency_ms"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Service implements add, remove, manual check, stats and diagnostics.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Service.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("service: store is required")
	case deps.Scheduler == nil:
		return nil, errors.New("service: scheduler is required")
	case deps.Processor == nil:
		return nil, errors.New("service: processor is required")
	case deps.Checker == nil:
		return nil, errors.New("service: checker is required")
	case deps.IDs == nil:
		return nil, errors.New("service: id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("service: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{deps: deps, cfg: cfg, logger: logger}, nil
}

// AddTarget validates and stores a new target, then runs one immediate check.
// A failed immediate check is logged; the created target is still returned.
func (s *Service) AddTarget(ctx context.Context, req AddRequest) (monitor.Target, error) {
	u, err := monitor.ValidateURL(req.URL, s.cfg.AllowedHosts)
	if err != nil {
		return monitor.Target{}, err
	}
	raw := u.String()
	productID, ok := monitor.ExtractProductID(raw)
	if !ok {
		return monitor.Target{}, fmt.Errorf("%w: %s", monitor.ErrInvalidIdentifier, raw)
	}

	existing, err := s.deps.Store.FindByIdentifierOrURL(ctx, raw)
	switch {
	case err == nil && existing.Active && existing.URL == raw:
		return monitor.Target{}, fmt.Errorf("%w: %s", monitor.ErrDuplicateTarget, raw)
	case err != nil && !errors.Is(err, monitor.ErrNotFound):
		return monitor.Target{}, persistence("find target", err)
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		return monitor.Target{}, fmt.Errorf("generate target id: %w", err)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = monitor.ExtractProductName(raw)
	}
	now := s.deps.Clock.Now()
	target := monitor.Target{
		ID:        id,
		ProductID: productID,
		URL:       raw,
		Name:      name,
		Active:    true,
		Owner:     strings.TrimSpace(req.Owner),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deps.Store.Create(ctx, target); err != nil {
		return monitor.Target{}, persistence("create target", err)
	}

	logger := s.logger.With(logging.TargetFields(target.ID, target.ProductID, target.URL)...)
	logger.Info("target added", zap.String("owner", target.Owner))

	if !s.deps.Scheduler.Claim(target.ID) {
		logger.Info("initial check skipped; already in progress")
		return target, nil
	}
	defer s.deps.Scheduler.Release(target.ID)
	out := s.deps.Processor.Process(ctx, target)
	if out.Record.Error != "" || out.Err != nil {
		logger.Warn("initial check failed",
			zap.String("check_error", out.Record.Error),
			zap.NamedError("persist_error", out.Err),
		)
	}
	return out.Target, nil
}

// RemoveTarget deactivates the target matching key. An empty owner skips the
// ownership check.
func (s *Service) RemoveTarget(ctx context.Context, key, owner string) (monitor.Target, error) {
	target, err := s.find(ctx, key, owner)
	if err != nil {
		return monitor.Target{}, err
	}
	if !target.Active {
		return monitor.Target{}, fmt.Errorf("%w: %s", monitor.ErrInactive, target.ID)
	}
	target.Active = false
	target.UpdatedAt = s.deps.Clock.Now()
	if err := s.deps.Store.Save(ctx, target); err != nil {
		return monitor.Target{}, persistence("deactivate target", err)
	}
	s.deps.Scheduler.Forget(target.ID)
	s.logger.Info("target removed", logging.TargetFields(target.ID, target.ProductID, target.URL)...)
	return target, nil
}

// CheckNow checks the target matching key immediately, ignoring its schedule.
func (s *Service) CheckNow(ctx context.Context, key, owner string) (monitor.CheckRecord, error) {
	target, err := s.find(ctx, key, owner)
	if err != nil {
		return monitor.CheckRecord{}, err
	}
	if !target.Active {
		return monitor.CheckRecord{}, fmt.Errorf("%w: %s", monitor.ErrInactive, target.ID)
	}
	if !s.deps.Scheduler.Claim(target.ID) {
		return monitor.CheckRecord{}, fmt.Errorf("%w: %s", monitor.ErrCheckInProgress, target.ID)
	}
	defer s.deps.Scheduler.Release(target.ID)
	out := s.deps.Processor.Process(ctx, target)
	if out.Err != nil {
		return out.Record, out.Err
	}
	return out.Record, nil
}

// Stats aggregates availability over active targets and tier counts.
func (s *Service) Stats(ctx context.Context) (monitor.Stats, error) {
	targets, err := s.deps.Store.ListActive(ctx)
	if err != nil {
		return monitor.Stats{}, persistence("list targets", err)
	}
	stats := monitor.Stats{Total: len(targets), Tiers: s.deps.Scheduler.TierCounts()}
	for _, t := range targets {
		if t.Available {
			stats.InStock++
		} else {
			stats.OutOfStock++
		}
	}
	if s.deps.Sessions != nil {
		ps := s.deps.Sessions.Stats()
		stats.Sessions = &monitor.SessionUsage{
			Capacity: s.deps.Sessions.Capacity(),
			Leased:   ps.Leased,
			Idle:     ps.Idle,
			Acquired: ps.Acquired,
			Replaced: ps.Replaced,
		}
	}
	return stats, nil
}

// ListTargets returns owner's active targets, or every active target when owner is empty.
func (s *Service) ListTargets(ctx context.Context, owner string) ([]monitor.Target, error) {
	var (
		targets []monitor.Target
		err     error
	)
	if owner = strings.TrimSpace(owner); owner == "" {
		targets, err = s.deps.Store.ListActive(ctx)
	} else {
		targets, err = s.deps.Store.ListByOwner(ctx, owner)
	}
	if err != nil {
		return nil, persistence("list targets", err)
	}
	if targets == nil {
		targets = []monitor.Target{}
	}
	return targets, nil
}

// History returns the latest check records of the target matching key.
func (s *Service) History(ctx context.Context, key string, limit int) ([]monitor.CheckRecord, error) {
	target, err := s.find(ctx, key, "")
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	records, err := s.deps.Store.ListChecks(ctx, target.ID, limit)
	if err != nil {
		return nil, persistence("list checks", err)
	}
	if records == nil {
		records = []monitor.CheckRecord{}
	}
	return records, nil
}

// TestURL checks url once without touching targets, schedules or history.
func (s *Service) TestURL(ctx context.Context, rawURL string) (monitor.CheckResult, error) {
	u, err := monitor.ValidateURL(rawURL, s.cfg.AllowedHosts)
	if err != nil {
		return monitor.CheckResult{}, err
	}
	result := s.deps.Checker.Check(ctx, u.String())
	if errors.Is(result.Err, monitor.ErrPoolExhausted) {
		return result, result.Err
	}
	return result, nil
}

// Benchmark runs TestURL iterations times and reports latency spread.
func (s *Service) Benchmark(ctx context.Context, rawURL string, iterations int) (BenchmarkResult, error) {
	switch {
	case iterations <= 0:
		iterations = defaultIterations
	case iterations > maxIterations:
		iterations = maxIterations
	}
	u, err := monitor.ValidateURL(rawURL, s.cfg.AllowedHosts)
	if err != nil {
		return BenchmarkResult{}, err
	}
	res := BenchmarkResult{URL: u.String()}
	var total time.Duration
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("benchmark interrupted: %w", err)
		}
		r := s.deps.Checker.Check(ctx, res.URL)
		res.Iterations++
		if r.Err != nil {
			res.Errors++
		} else if r.Available {
			res.Available++
		}
		ms := r.Latency.Milliseconds()
		if res.Iterations == 1 || ms < res.MinLatencyMs {
			res.MinLatencyMs = ms
		}
		if ms > res.MaxLatencyMs {
			res.MaxLatencyMs = ms
		}
		total += r.Latency
	}
	res.AvgLatencyMs = float64(total.Milliseconds()) / float64(res.Iterations)
	return res, nil
}

func (s *Service) find(ctx context.Context, key, owner string) (monitor.Target, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return monitor.Target{}, fmt.Errorf("%w: empty key", monitor.ErrNotFound)
	}
	if !recognizedKey(key) {
		return monitor.Target{}, fmt.Errorf("%w: unrecognized key %q", monitor.ErrNotFound, key)
	}
	target, err := s.deps.Store.FindByIdentifierOrURL(ctx, key)
	if err != nil {
		return monitor.Target{}, persistence("find target", err)
	}
	if owner = strings.TrimSpace(owner); owner != "" && target.Owner != owner {
		return monitor.Target{}, fmt.Errorf("%w: %s", monitor.ErrNotOwner, target.ID)
	}
	return target, nil
}

// recognizedKey reports whether key can name a target: its ID, its product ID or a product URL.
func recognizedKey(key string) bool {
	if uuid.IsValid(key) || monitor.IsValidProductID(key) {
		return true
	}
	_, ok := monitor.ExtractProductID(key)
	return ok
}

// persistence wraps store failures, leaving not-found and duplicate errors as they are.
func persistence(op string, err error) error {
	if errors.Is(err, monitor.ErrNotFound) || errors.Is(err, monitor.ErrDuplicateTarget) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", monitor.ErrPersistence, op, err)
}
