// Package scheduler decides which targets are due and retunes their polling tier
// from observed results.
package scheduler

import (
	"sync"
	"time"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

// Tier intervals in multiples of Config.Unit.
var tierMultiplier = map[monitor.Tier]int{
	monitor.TierHigh:   1,
	monitor.TierMedium: 3,
	monitor.TierLow:    5,
	monitor.TierCold:   10,
}

// State is the scheduling history of one target.
type State struct {
	Tier                   monitor.Tier `json:"tier"`
	LastCheck              time.Time    `json:"last_check"`
	ConsecutiveUnavailable int          `json:"consecutive_unavailable"`
	TotalChecks            int          `json:"total_checks"`
	Flips                  int          `json:"flips"`
}

// Config holds the tier thresholds.
type Config struct {
	// Unit scales every tier interval.
	Unit time.Duration
	// LowAfter consecutive unavailable results demote a target to LOW.
	LowAfter int
	// ColdAfter consecutive unavailable results demote a target to COLD.
	ColdAfter int
	// VolatileFlips is the flip count above which an unavailable target is
	// considered volatile.
	VolatileFlips int
}

func (c Config) withDefaults() Config {
	if c.Unit <= 0 {
		c.Unit = time.Minute
	}
	if c.LowAfter <= 0 {
		c.LowAfter = 10
	}
	if c.ColdAfter <= 0 {
		c.ColdAfter = 20
	}
	if c.VolatileFlips <= 0 {
		c.VolatileFlips = 3
	}
	return c
}

// Scheduler owns per-target State through its StateStore and tracks which
// targets have a check in flight.
type Scheduler struct {
	cfg   Config
	store StateStore
	clock monitor.Clock

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New builds a Scheduler. A nil store gets a MemoryStore.
func New(cfg Config, store StateStore, clock monitor.Clock) *Scheduler {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		store:    store,
		clock:    clock,
		inFlight: make(map[string]struct{}),
	}
}

// Claim marks targetID as being checked. It returns false when a check of the
// same target is already in flight; the caller must then skip it.
func (s *Scheduler) Claim(targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[targetID]; busy {
		return false
	}
	s.inFlight[targetID] = struct{}{}
	return true
}

// Release ends a claim taken with Claim.
func (s *Scheduler) Release(targetID string) {
	s.mu.Lock()
	delete(s.inFlight, targetID)
	s.mu.Unlock()
}

// Interval returns the polling interval of tier.
func (s *Scheduler) Interval(tier monitor.Tier) time.Duration {
	mult, ok := tierMultiplier[tier]
	if !ok {
		mult = tierMultiplier[monitor.TierMedium]
	}
	return time.Duration(mult) * s.cfg.Unit
}

// IsDue reports whether target should be checked now. Unseen targets are always due.
func (s *Scheduler) IsDue(target monitor.Target) bool {
	now := s.clock.Now()
	st := s.store.Update(target.ID, func(cur State, ok bool) State {
		if !ok {
			return s.initial(now)
		}
		return cur
	})
	return !now.Before(st.LastCheck.Add(s.Interval(st.Tier)))
}

// RecordResult applies a successful check. A flip is counted only when available
// differs from the target's persisted availability.
func (s *Scheduler) RecordResult(target monitor.Target, available bool) State {
	now := s.clock.Now()
	return s.store.Update(target.ID, func(cur State, ok bool) State {
		if !ok {
			cur = s.initial(now)
		}
		if available != target.Available {
			cur.Flips++
		}
		if available {
			cur.ConsecutiveUnavailable = 0
			cur.Tier = monitor.TierHigh
		} else {
			cur.ConsecutiveUnavailable++
			cur.Tier = s.demote(cur)
		}
		cur.LastCheck = now
		cur.TotalChecks++
		return cur
	})
}

// RecordError advances the schedule of a target whose check failed without
// touching its tier or streaks.
func (s *Scheduler) RecordError(target monitor.Target) State {
	now := s.clock.Now()
	return s.store.Update(target.ID, func(cur State, ok bool) State {
		if !ok {
			cur = s.initial(now)
		}
		cur.LastCheck = now
		cur.TotalChecks++
		return cur
	})
}

func (s *Scheduler) demote(st State) monitor.Tier {
	switch {
	case st.ConsecutiveUnavailable >= s.cfg.ColdAfter:
		return monitor.TierCold
	case st.ConsecutiveUnavailable >= s.cfg.LowAfter:
		return monitor.TierLow
	case st.Flips > s.cfg.VolatileFlips:
		// A volatile target stays watched at MEDIUM.
		return monitor.TierMedium
	default:
		return monitor.TierMedium
	}
}

// State returns the current state of targetID.
func (s *Scheduler) State(targetID string) (State, bool) {
	return s.store.Get(targetID)
}

// Forget drops the state of targetID, e.g. when the target is deactivated.
func (s *Scheduler) Forget(targetID string) {
	s.store.Delete(targetID)
}

// TierCounts counts tracked targets per tier. Every tier is present.
func (s *Scheduler) TierCounts() map[monitor.Tier]int {
	counts := make(map[monitor.Tier]int, len(monitor.Tiers))
	for _, tier := range monitor.Tiers {
		counts[tier] = 0
	}
	for _, st := range s.store.Snapshot() {
		counts[st.Tier]++
	}
	return counts
}

// initial is the state of a target seen for the first time, backdated so it is
// due immediately.
func (s *Scheduler) initial(now time.Time) State {
	return State{
		Tier:      monitor.TierMedium,
		LastCheck: now.Add(-s.Interval(monitor.TierCold)),
	}
}
