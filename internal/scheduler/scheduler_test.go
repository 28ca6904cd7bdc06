package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestScheduler() (*Scheduler, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(Config{Unit: time.Minute}, NewMemoryStore(), clk), clk
}

func TestNewTargetIsDueImmediately(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	target := monitor.Target{ID: "t1"}

	require.True(t, s.IsDue(target))
	st, ok := s.State("t1")
	require.True(t, ok)
	require.Equal(t, monitor.TierMedium, st.Tier)
	require.Zero(t, st.TotalChecks)
}

func TestIsDueFollowsTierInterval(t *testing.T) {
	t.Parallel()

	s, clk := newTestScheduler()
	target := monitor.Target{ID: "t1"}

	s.RecordResult(target, false)
	require.False(t, s.IsDue(target))

	clk.Advance(3*time.Minute - time.Second)
	require.False(t, s.IsDue(target))
	clk.Advance(time.Second)
	require.True(t, s.IsDue(target), "due exactly at last check plus the MEDIUM interval")

	s.RecordResult(target, true)
	clk.Advance(time.Minute)
	require.True(t, s.IsDue(target), "HIGH targets are due every unit")
}

func TestAvailableResetsToHigh(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	target := monitor.Target{ID: "t1"}
	for i := 0; i < 25; i++ {
		s.RecordResult(target, false)
	}
	st := s.RecordResult(target, true)
	require.Equal(t, monitor.TierHigh, st.Tier)
	require.Zero(t, st.ConsecutiveUnavailable)
	require.Equal(t, 26, st.TotalChecks)
}

func TestUnavailableStreakDemotes(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	target := monitor.Target{ID: "t1"}

	var st State
	for i := 1; i <= 20; i++ {
		st = s.RecordResult(target, false)
		switch {
		case i < 10:
			require.Equal(t, monitor.TierMedium, st.Tier, "check %d", i)
		case i < 20:
			require.Equal(t, monitor.TierLow, st.Tier, "check %d", i)
		}
	}
	require.Equal(t, monitor.TierCold, st.Tier)
	require.Equal(t, 20, st.ConsecutiveUnavailable)
	require.Equal(t, 10*time.Minute, s.Interval(st.Tier))
}

func TestScenarioMediumToLowToHigh(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	target := monitor.Target{ID: "t1", Available: false}

	st := s.RecordResult(target, false)
	require.Equal(t, monitor.TierMedium, st.Tier)
	st = s.RecordResult(target, false)
	require.Equal(t, monitor.TierMedium, st.Tier)
	for i := 3; i <= 10; i++ {
		st = s.RecordResult(target, false)
	}
	require.Equal(t, monitor.TierLow, st.Tier)
	require.Zero(t, st.Flips)

	st = s.RecordResult(target, true)
	require.Equal(t, monitor.TierHigh, st.Tier)
	require.Zero(t, st.ConsecutiveUnavailable)
	require.Equal(t, 1, st.Flips)
}

func TestFlipsCountOnlyGenuineChanges(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()

	// Persisted availability matches the result: no flip, however often it repeats.
	for i := 0; i < 5; i++ {
		s.RecordResult(monitor.Target{ID: "t1", Available: true}, true)
	}
	st, _ := s.State("t1")
	require.Zero(t, st.Flips)

	// Alternating results against the persisted value are genuine flips.
	target := monitor.Target{ID: "t2"}
	for i := 0; i < 4; i++ {
		available := i%2 == 0
		s.RecordResult(target, available)
		target.Available = available
	}
	st, _ = s.State("t2")
	require.Equal(t, 4, st.Flips)

	// A volatile target with a miss streak below LowAfter stays MEDIUM.
	st = s.RecordResult(target, false)
	require.Equal(t, monitor.TierMedium, st.Tier)
}

func TestRecordErrorOnlyAdvancesSchedule(t *testing.T) {
	t.Parallel()

	s, clk := newTestScheduler()
	target := monitor.Target{ID: "t1"}
	s.RecordResult(target, true)

	clk.Advance(time.Minute)
	require.True(t, s.IsDue(target))
	st := s.RecordError(target)
	require.Equal(t, monitor.TierHigh, st.Tier)
	require.Equal(t, 2, st.TotalChecks)
	require.Equal(t, clk.Now(), st.LastCheck)
	require.False(t, s.IsDue(target))

	st = s.RecordError(monitor.Target{ID: "fresh"})
	require.Equal(t, monitor.TierMedium, st.Tier)
	require.Equal(t, 1, st.TotalChecks)
}

func TestCustomThresholds(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	s := New(Config{Unit: time.Second, LowAfter: 2, ColdAfter: 3}, nil, clk)
	target := monitor.Target{ID: "t1"}

	require.Equal(t, monitor.TierMedium, s.RecordResult(target, false).Tier)
	require.Equal(t, monitor.TierLow, s.RecordResult(target, false).Tier)
	require.Equal(t, monitor.TierCold, s.RecordResult(target, false).Tier)
	require.Equal(t, 10*time.Second, s.Interval(monitor.TierCold))
}

func TestTierCountsAndForget(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	s.RecordResult(monitor.Target{ID: "a"}, true)
	s.RecordResult(monitor.Target{ID: "b"}, false)
	s.IsDue(monitor.Target{ID: "c"})

	counts := s.TierCounts()
	require.Equal(t, 1, counts[monitor.TierHigh])
	require.Equal(t, 2, counts[monitor.TierMedium])
	require.Equal(t, 0, counts[monitor.TierCold])
	require.Len(t, counts, 4)

	s.Forget("a")
	_, ok := s.State("a")
	require.False(t, ok)
	require.Equal(t, 0, s.TierCounts()[monitor.TierHigh])
}

func TestConcurrentRecords(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := monitor.Target{ID: fmt.Sprintf("t%d", i%4)}
			for j := 0; j < 50; j++ {
				s.IsDue(target)
				s.RecordResult(target, j%2 == 0)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		st, ok := s.State(fmt.Sprintf("t%d", i))
		require.True(t, ok)
		total += st.TotalChecks
	}
	require.Equal(t, 1000, total)
}

func TestClaimAllowsOneCheckInFlight(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	require.True(t, s.Claim("t1"))
	require.False(t, s.Claim("t1"))
	require.True(t, s.Claim("t2"), "claims are per target")

	s.Release("t1")
	require.True(t, s.Claim("t1"))
	s.Release("unknown")
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim("t1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
