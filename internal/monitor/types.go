// Package monitor defines core types shared across the availability monitor subsystems.
package monitor

import (
	"time"
)

// Verdict is the outcome of running the detection pipeline against a rendered page.
type Verdict string

// Verdict values produced by detection strategies.
const (
	VerdictFound        Verdict = "found"
	VerdictNotFound     Verdict = "not_found"
	VerdictUnavailable  Verdict = "unavailable"
	VerdictInconclusive Verdict = "inconclusive"
)

// Available reports whether the verdict means the product can be bought.
func (v Verdict) Available() bool {
	return v == VerdictFound
}

// Tier controls how often a target is polled.
type Tier string

// Polling tiers ordered from most to least frequent.
const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
	TierCold   Tier = "COLD"
)

// Tiers lists every tier in polling order.
var Tiers = []Tier{TierHigh, TierMedium, TierLow, TierCold}

// Target is one monitored product page.
type Target struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"product_id"`
	URL           string     `json:"url"`
	Name          string     `json:"name"`
	Active        bool       `json:"active"`
	Available     bool       `json:"available"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Owner         string     `json:"owner"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CheckRecord is the immutable outcome of a single check.
type CheckRecord struct {
	ID          string        `json:"id"`
	TargetID    string        `json:"target_id"`
	Available   *bool         `json:"available,omitempty"`
	Latency     time.Duration `json:"-"`
	LatencyMs   int64         `json:"latency_ms"`
	Error       string        `json:"error,omitempty"`
	Changed     bool          `json:"changed"`
	Cached      bool          `json:"cached"`
	SnapshotURI string        `json:"snapshot_uri,omitempty"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// CheckUpdate is the slice of a Target that a finished check writes back.
// A nil Available leaves the stored availability untouched.
type CheckUpdate struct {
	TargetID  string
	Available *bool
	LastError string
	CheckedAt time.Time
}

// CheckResult is what the checker produces for one URL.
type CheckResult struct {
	URL         string        `json:"url"`
	Available   bool          `json:"available"`
	Latency     time.Duration `json:"-"`
	LatencyMs   int64         `json:"latency_ms"`
	Verdict     Verdict       `json:"verdict,omitempty"`
	Strategy    string        `json:"strategy,omitempty"`
	Cached      bool          `json:"cached"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Markup      []byte        `json:"-"`
	Err         error         `json:"-"`
}

// ErrorText returns the error message or an empty string.
func (r CheckResult) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Detection is the pipeline result for one rendered page.
type Detection struct {
	Verdict  Verdict
	Strategy string
	Markup   string
}

// Stats aggregates monitoring totals.
type Stats struct {
	Total      int           `json:"total"`
	InStock    int           `json:"in_stock"`
	OutOfStock int           `json:"out_of_stock"`
	Tiers      map[Tier]int  `json:"tiers"`
	Sessions   *SessionUsage `json:"sessions,omitempty"`
}

// SessionUsage is a point-in-time view of the rendering session pool.
type SessionUsage struct {
	Capacity int   `json:"capacity"`
	Leased   int64 `json:"leased"`
	Idle     int   `json:"idle"`
	Acquired int64 `json:"acquired"`
	Replaced int64 `json:"replaced"`
}
