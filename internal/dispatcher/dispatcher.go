// Package dispatcher runs periodic check cycles and fans due targets out to workers.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/metrics"
	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/worker"
)

// Lister returns the targets eligible for checking.
type Lister interface {
	ListActive(ctx context.Context) ([]monitor.Target, error)
}

// Scheduler decides which targets are due and hands out per-target claims so a
// target is never checked twice at once.
type Scheduler interface {
	IsDue(target monitor.Target) bool
	Claim(targetID string) bool
	Release(targetID string)
	TierCounts() map[monitor.Tier]int
}

// Processor checks one target.
type Processor interface {
	Process(ctx context.Context, target monitor.Target) worker.Outcome
}

// Config controls cycle cadence and fan-out.
type Config struct {
	CycleInterval time.Duration
	Workers       int
	// DrainTimeout bounds how long Run waits for in-flight cycles after cancellation.
	DrainTimeout time.Duration
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Active int
	Due    int
	// InFlight counts due targets skipped because a check of them was still running.
	InFlight        int
	Checked         int
	Available       int
	BecameAvailable int
	Errors          int
	Duration        time.Duration
}

// Dispatcher owns the cycle loop.
type Dispatcher struct {
	cfg       Config
	lister    Lister
	scheduler Scheduler
	processor Processor
	logger    *zap.Logger
}

// New creates a Dispatcher.
func New(cfg Config, lister Lister, scheduler Scheduler, processor Processor, logger *zap.Logger) *Dispatcher {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:       cfg,
		lister:    lister,
		scheduler: scheduler,
		processor: processor,
		logger:    logger,
	}
}

// Run starts a cycle immediately and then on every tick. Cycles may overlap.
// After ctx is cancelled no new cycle starts; in-flight cycles get DrainTimeout
// to finish before their context is cancelled too.
func (d *Dispatcher) Run(ctx context.Context) error {
	cycleCtx, cancelCycles := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCycles()

	var wg sync.WaitGroup
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.RunCycle(cycleCtx)
		}()
	}

	ticker := time.NewTicker(d.cfg.CycleInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started",
		zap.Duration("cycle_interval", d.cfg.CycleInterval),
		zap.Int("workers", d.cfg.Workers),
	)
	start()
	for {
		select {
		case <-ctx.Done():
			return d.drain(&wg, cancelCycles)
		case <-ticker.C:
			start()
		}
	}
}

func (d *Dispatcher) drain(wg *sync.WaitGroup, cancelCycles context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-timer.C:
		cancelCycles()
		d.logger.Warn("dispatcher drain timed out; abandoning in-flight cycles",
			zap.Duration("drain_timeout", d.cfg.DrainTimeout))
		return errors.New("dispatcher drain timed out")
	}
}

// RunCycle checks every due active target once and waits for all of them.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleReport {
	started := time.Now()
	var report CycleReport

	targets, err := d.lister.ListActive(ctx)
	if err != nil {
		d.logger.Error("list active targets failed", zap.Error(err))
		return report
	}
	report.Active = len(targets)

	due := make([]monitor.Target, 0, len(targets))
	for _, target := range targets {
		if !d.scheduler.IsDue(target) {
			continue
		}
		if !d.scheduler.Claim(target.ID) {
			report.InFlight++
			continue
		}
		due = append(due, target)
	}
	report.Due = len(due)

	if len(due) > 0 {
		d.fanOut(ctx, due, &report)
	}

	report.Duration = time.Since(started)
	metrics.ObserveCycle(report.Due, report.Duration)
	for tier, count := range d.scheduler.TierCounts() {
		metrics.SetTierCount(string(tier), count)
	}

	d.logger.Info("cycle complete",
		zap.Int("active", report.Active),
		zap.Int("due", report.Due),
		zap.Int("in_flight", report.InFlight),
		zap.Int("checked", report.Checked),
		zap.Int("available", report.Available),
		zap.Int("became_available", report.BecameAvailable),
		zap.Int("errors", report.Errors),
		zap.Duration("duration", report.Duration),
	)
	return report
}

func (d *Dispatcher) fanOut(ctx context.Context, due []monitor.Target, report *CycleReport) {
	jobs := make(chan monitor.Target)
	results := make(chan worker.Outcome)

	workers := min(d.cfg.Workers, len(due))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				results <- d.process(ctx, target)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, target := range due {
			select {
			case <-ctx.Done():
				for _, skipped := range due[i:] {
					d.scheduler.Release(skipped.ID)
				}
				return
			case jobs <- target:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for out := range results {
		report.Checked++
		if out.Record.Error != "" {
			report.Errors++
		}
		if out.Target.Available {
			report.Available++
		}
		if out.BecameAvailable {
			report.BecameAvailable++
		}
	}
}

// process runs one claimed target and releases its claim.
func (d *Dispatcher) process(ctx context.Context, target monitor.Target) worker.Outcome {
	defer d.scheduler.Release(target.ID)
	return d.processor.Process(ctx, target)
}
