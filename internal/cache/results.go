package cache

import (
	"time"

	"github.com/JakeFAU/restock-watch/internal/metrics"
)

// Snapshot is the last observed availability of a page.
type Snapshot struct {
	Available   bool
	Fingerprint string
}

// Config sets the TTL of each cache.
type Config struct {
	SnapshotTTL     time.Duration
	ReachabilityTTL time.Duration
	MaxEntries      int
	Now             func() time.Time
}

// Results pairs the snapshot cache with the reachability cache.
type Results struct {
	snapshots *TTL[Snapshot]
	reachable *TTL[bool]
}

// NewResults builds both caches.
func NewResults(cfg Config) *Results {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 30 * time.Second
	}
	if cfg.ReachabilityTTL <= 0 {
		cfg.ReachabilityTTL = time.Minute
	}
	return &Results{
		snapshots: NewTTL[Snapshot](cfg.SnapshotTTL, cfg.MaxEntries, cfg.Now),
		reachable: NewTTL[bool](cfg.ReachabilityTTL, cfg.MaxEntries, cfg.Now),
	}
}

// GetSnapshot returns the cached snapshot for url and whether it is fresh.
func (r *Results) GetSnapshot(url string) (Snapshot, bool) {
	snap, fresh := r.snapshots.Get(url)
	metrics.ObserveCacheLookup("snapshot", fresh)
	return snap, fresh
}

// PutSnapshot records the availability observed for url.
func (r *Results) PutSnapshot(url string, snap Snapshot) {
	r.snapshots.Put(url, snap)
}

// GetReachable returns the cached reachability of url and whether it is fresh.
func (r *Results) GetReachable(url string) (bool, bool) {
	ok, fresh := r.reachable.Get(url)
	metrics.ObserveCacheLookup("reachability", fresh)
	return ok, fresh
}

// PutReachable records whether url answered the reachability probe.
func (r *Results) PutReachable(url string, reachable bool) {
	r.reachable.Put(url, reachable)
}
