package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

// TargetStore is an in-memory monitor.TargetStore for development and tests.
type TargetStore struct {
	mu      sync.RWMutex
	targets map[string]monitor.Target
	order   []string
	checks  map[string][]monitor.CheckRecord
}

// NewTargetStore constructs an empty TargetStore.
func NewTargetStore() *TargetStore {
	return &TargetStore{
		targets: make(map[string]monitor.Target),
		checks:  make(map[string][]monitor.CheckRecord),
	}
}

// Create inserts target. An active target with the same URL is a duplicate.
func (s *TargetStore) Create(_ context.Context, target monitor.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.targets[target.ID]; exists {
		return fmt.Errorf("%w: id %s", monitor.ErrDuplicateTarget, target.ID)
	}
	if target.Active {
		for _, existing := range s.targets {
			if existing.Active && existing.URL == target.URL {
				return fmt.Errorf("%w: %s", monitor.ErrDuplicateTarget, target.URL)
			}
		}
	}
	s.targets[target.ID] = target
	s.order = append(s.order, target.ID)
	return nil
}

// Save replaces an existing target.
func (s *TargetStore) Save(_ context.Context, target monitor.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[target.ID]; !ok {
		return fmt.Errorf("%w: target %s", monitor.ErrNotFound, target.ID)
	}
	s.targets[target.ID] = target
	return nil
}

// RecordCheck writes the outcome of a check onto an active target.
func (s *TargetStore) RecordCheck(_ context.Context, update monitor.CheckUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[update.TargetID]
	if !ok {
		return fmt.Errorf("%w: target %s", monitor.ErrNotFound, update.TargetID)
	}
	if !t.Active {
		return fmt.Errorf("%w: target %s", monitor.ErrInactive, update.TargetID)
	}
	if update.Available != nil {
		t.Available = *update.Available
	}
	checkedAt := update.CheckedAt
	t.LastCheckedAt = &checkedAt
	t.LastError = update.LastError
	t.UpdatedAt = update.CheckedAt
	s.targets[t.ID] = t
	return nil
}

// ListActive returns active targets in creation order.
func (s *TargetStore) ListActive(_ context.Context) ([]monitor.Target, error) {
	return s.filter(func(t monitor.Target) bool { return t.Active }), nil
}

// ListByOwner returns owner's active targets in creation order.
func (s *TargetStore) ListByOwner(_ context.Context, owner string) ([]monitor.Target, error) {
	return s.filter(func(t monitor.Target) bool { return t.Active && t.Owner == owner }), nil
}

// FindByIdentifierOrURL matches key against the target ID, product ID or URL.
// Active targets win over inactive ones.
func (s *TargetStore) FindByIdentifierOrURL(_ context.Context, key string) (monitor.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found    monitor.Target
		hasMatch bool
	)
	for _, id := range s.order {
		t := s.targets[id]
		if t.ID != key && t.ProductID != key && t.URL != key {
			continue
		}
		if t.Active {
			return t, nil
		}
		if !hasMatch {
			found, hasMatch = t, true
		}
	}
	if !hasMatch {
		return monitor.Target{}, fmt.Errorf("%w: %s", monitor.ErrNotFound, key)
	}
	return found, nil
}

// InsertCheck appends record to its target's history.
func (s *TargetStore) InsertCheck(_ context.Context, record monitor.CheckRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[record.TargetID]; !ok {
		return fmt.Errorf("%w: target %s", monitor.ErrNotFound, record.TargetID)
	}
	s.checks[record.TargetID] = append(s.checks[record.TargetID], record)
	return nil
}

// ListChecks returns up to limit records of targetID, newest first. limit <= 0 means all.
func (s *TargetStore) ListChecks(_ context.Context, targetID string, limit int) ([]monitor.CheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.checks[targetID]
	out := make([]monitor.CheckRecord, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TargetStore) filter(keep func(monitor.Target) bool) []monitor.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Target, 0, len(s.order))
	for _, id := range s.order {
		if t := s.targets[id]; keep(t) {
			out = append(out, t)
		}
	}
	return out
}
