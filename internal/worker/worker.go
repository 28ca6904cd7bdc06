// Package worker runs one availability check for one target and records its outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/logging"
	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/scheduler"
)

// Checker runs the availability check for a URL.
type Checker interface {
	Check(ctx context.Context, url string) monitor.CheckResult
}

// Scheduler receives the outcome of each check.
type Scheduler interface {
	RecordResult(target monitor.Target, available bool) scheduler.State
	RecordError(target monitor.Target) scheduler.State
	Forget(targetID string)
}

// Config controls Worker behavior.
type Config struct {
	ContentType string
	BlobPrefix  string
	// CheckTimeout bounds a single check; zero leaves it to the caller's context.
	CheckTimeout time.Duration
}

// Deps are the Worker's collaborators. BlobStore is optional; without it
// snapshots are not archived.
type Deps struct {
	Checker   Checker
	Scheduler Scheduler
	Store     monitor.TargetStore
	Notifier  monitor.Notifier
	BlobStore monitor.BlobStore
	IDs       monitor.IDGenerator
	Clock     monitor.Clock
}

// Outcome summarizes one processed target.
type Outcome struct {
	Target          monitor.Target
	Record          monitor.CheckRecord
	Tier            monitor.Tier
	BecameAvailable bool
	// Removed is set when the target was deactivated while its check ran; the
	// result was then not applied to the target.
	Removed bool
	// Err carries persistence failures, wrapped with monitor.ErrPersistence.
	Err error
}

// Worker processes targets handed out by the dispatcher.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Process checks target, updates its schedule, persists the outcome and a check
// record, and notifies on a became-available transition. It never panics and
// never returns an error: check failures end up in the record.
func (w *Worker) Process(ctx context.Context, target monitor.Target) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("recording check outcome panicked", append(w.fields(target), zap.Any("panic", r))...)
			out = Outcome{Target: target, Err: fmt.Errorf("record check outcome panicked: %v", r)}
		}
	}()
	return w.finish(ctx, target, w.check(ctx, target))
}

// check runs the checker, turning a panic into an error result.
func (w *Worker) check(ctx context.Context, target monitor.Target) (result monitor.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("check panicked", append(w.fields(target), zap.Any("panic", r))...)
			result = monitor.CheckResult{
				URL: target.URL,
				Err: fmt.Errorf("%w: check panicked: %v", monitor.ErrDetection, r),
			}
		}
	}()
	if w.cfg.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.CheckTimeout)
		defer cancel()
	}
	return w.deps.Checker.Check(ctx, target.URL)
}

func (w *Worker) finish(ctx context.Context, target monitor.Target, result monitor.CheckResult) Outcome {
	now := w.deps.Clock.Now()
	logger := w.logger.With(w.fields(target)...)

	var state scheduler.State
	if result.Err != nil {
		state = w.deps.Scheduler.RecordError(target)
	} else {
		state = w.deps.Scheduler.RecordResult(target, result.Available)
	}

	record := monitor.CheckRecord{
		TargetID:  target.ID,
		Latency:   result.Latency,
		LatencyMs: result.Latency.Milliseconds(),
		Cached:    result.Cached,
		CheckedAt: now,
	}
	id, err := w.deps.IDs.NewID()
	if err != nil {
		logger.Error("generate check id failed", zap.Error(err))
	}
	record.ID = id

	became := false
	if result.Err != nil {
		record.Error = result.ErrorText()
		target.LastError = record.Error
	} else {
		available := result.Available
		record.Available = &available
		record.Changed = available != target.Available
		became = available && !target.Available
		target.Available = available
		target.LastError = ""
	}
	target.LastCheckedAt = &now
	target.UpdatedAt = now

	var persistErr error
	removed := false
	err = w.deps.Store.RecordCheck(ctx, monitor.CheckUpdate{
		TargetID:  target.ID,
		Available: record.Available,
		LastError: target.LastError,
		CheckedAt: now,
	})
	switch {
	case errors.Is(err, monitor.ErrInactive):
		removed, became = true, false
		target.Active = false
		w.deps.Scheduler.Forget(target.ID)
		logger.Info("target removed during check; outcome not applied")
	case err != nil:
		logger.Error("record check on target failed", zap.Error(err))
		persistErr = fmt.Errorf("%w: record check on target: %w", monitor.ErrPersistence, err)
	}

	if became {
		record.SnapshotURI = w.archive(ctx, target, record, result)
	}
	if record.ID != "" {
		if err := w.deps.Store.InsertCheck(ctx, record); err != nil {
			logger.Error("insert check record failed", zap.Error(err))
			persistErr = errors.Join(persistErr, fmt.Errorf("%w: insert check record: %w", monitor.ErrPersistence, err))
		}
	}

	if became {
		w.notify(ctx, target, logger)
	}

	if result.Err != nil {
		logger.Warn("check failed",
			zap.Error(result.Err),
			zap.String("tier", string(state.Tier)),
			zap.Int64("latency_ms", record.LatencyMs),
		)
	} else {
		logger.Debug("check recorded",
			zap.Bool("available", target.Available),
			zap.Bool("changed", record.Changed),
			zap.Bool("cached", record.Cached),
			zap.String("tier", string(state.Tier)),
			zap.Int64("latency_ms", record.LatencyMs),
		)
	}

	return Outcome{Target: target, Record: record, Tier: state.Tier, BecameAvailable: became, Removed: removed, Err: persistErr}
}

// archive stores the markup that produced a became-available verdict.
func (w *Worker) archive(ctx context.Context, target monitor.Target, record monitor.CheckRecord, result monitor.CheckResult) string {
	if w.deps.BlobStore == nil || len(result.Markup) == 0 {
		return ""
	}
	name := result.Fingerprint
	if name == "" {
		name = record.ID
	}
	uri, err := w.deps.BlobStore.PutObject(ctx, w.buildBlobPath(target.ID, name), w.cfg.ContentType, result.Markup)
	if err != nil {
		w.logger.Warn("archive snapshot failed", append(w.fields(target), zap.Error(err))...)
		return ""
	}
	return uri
}

func (w *Worker) buildBlobPath(targetID, name string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", targetID, name)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, targetID, name)
}

// notify delivers the transition. Failures are logged, never propagated.
func (w *Worker) notify(ctx context.Context, target monitor.Target, logger *zap.Logger) {
	if w.deps.Notifier == nil {
		logger.Info("target became available")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notifier panicked", zap.Any("panic", r))
		}
	}()
	if err := w.deps.Notifier.NotifyBecameAvailable(ctx, target); err != nil {
		logger.Warn("notification failed; target became available", zap.Error(err))
		return
	}
	logger.Info("target became available, notification sent")
}

func (w *Worker) fields(target monitor.Target) []zap.Field {
	return logging.TargetFields(target.ID, target.ProductID, target.URL)
}
