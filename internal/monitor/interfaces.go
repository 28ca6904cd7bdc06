package monitor

import (
	"context"
	"time"
)

// TargetStore persists targets and their check history.
type TargetStore interface {
	Create(ctx context.Context, target Target) error
	Save(ctx context.Context, target Target) error
	// RecordCheck applies update to an active target only; an inactive target
	// yields ErrInactive and is left unchanged.
	RecordCheck(ctx context.Context, update CheckUpdate) error
	ListActive(ctx context.Context) ([]Target, error)
	ListByOwner(ctx context.Context, owner string) ([]Target, error)
	FindByIdentifierOrURL(ctx context.Context, key string) (Target, error)
	InsertCheck(ctx context.Context, record CheckRecord) error
	ListChecks(ctx context.Context, targetID string, limit int) ([]CheckRecord, error)
}

// Session is a leased handle to a page rendering engine.
type Session interface {
	// Ping is a cheap liveness probe.
	Ping(ctx context.Context) error
	// Reset drops volatile per-session state such as cookies.
	Reset(ctx context.Context) error
	// Render loads url. A timeout wraps ErrRenderTimeout and leaves a partial page behind.
	Render(ctx context.Context, url string) error
	// HTML returns the current rendered markup.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// SessionFactory creates new rendering sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Prober performs a cheap reachability check.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// Detector decides availability from a rendered session.
type Detector interface {
	Detect(ctx context.Context, session Session, keyword string) (Detection, error)
}

// Notifier is told when a target becomes available.
type Notifier interface {
	NotifyBecameAvailable(ctx context.Context, target Target) error
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests of rendered markup.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
