// Package notify delivers "target became available" events.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/logging"
	"github.com/JakeFAU/restock-watch/internal/metrics"
	"github.com/JakeFAU/restock-watch/internal/monitor"
)

// Event is the payload sent by webhook and publisher notifiers.
type Event struct {
	Type       string    `json:"type"`
	TargetID   string    `json:"target_id"`
	ProductID  string    `json:"product_id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Owner      string    `json:"owner,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventBecameAvailable is the only event type emitted today.
const EventBecameAvailable = "became_available"

// Attributes lets Pub/Sub subscribers filter on the event type.
func (e Event) Attributes() map[string]string {
	return map[string]string{"event": e.Type, "product_id": e.ProductID}
}

// NewEvent builds the event for target at now.
func NewEvent(target monitor.Target, now time.Time) Event {
	return Event{
		Type:       EventBecameAvailable,
		TargetID:   target.ID,
		ProductID:  target.ProductID,
		Name:       target.Name,
		URL:        target.URL,
		Owner:      target.Owner,
		OccurredAt: now.UTC(),
	}
}

// Log writes notifications to the structured log only.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a log-only notifier.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// NotifyBecameAvailable logs the transition.
func (l *Log) NotifyBecameAvailable(_ context.Context, target monitor.Target) error {
	l.logger.Info("product back in stock",
		append(logging.TargetFields(target.ID, target.ProductID, target.URL),
			zap.String("name", target.Name),
			zap.String("owner", target.Owner),
		)...,
	)
	metrics.ObserveNotification("log", nil)
	return nil
}

// Publisher sends notifications as events through a monitor.Publisher.
type Publisher struct {
	publisher monitor.Publisher
	topic     string
	clock     monitor.Clock
}

// NewPublisher returns a notifier publishing to topic.
func NewPublisher(publisher monitor.Publisher, topic string, clock monitor.Clock) *Publisher {
	return &Publisher{publisher: publisher, topic: topic, clock: clock}
}

// NotifyBecameAvailable publishes one Event.
func (p *Publisher) NotifyBecameAvailable(ctx context.Context, target monitor.Target) error {
	_, err := p.publisher.Publish(ctx, p.topic, NewEvent(target, p.clock.Now()))
	metrics.ObserveNotification("pubsub", err)
	if err != nil {
		return fmt.Errorf("publish became-available event: %w", err)
	}
	return nil
}

// Fallback tries primary and, when it fails, records the event in the log
// instead. It never returns an error.
type Fallback struct {
	primary monitor.Notifier
	log     *Log
	logger  *zap.Logger
}

// NewFallback wraps primary.
func NewFallback(primary monitor.Notifier, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{primary: primary, log: NewLog(logger), logger: logger}
}

// NotifyBecameAvailable implements monitor.Notifier.
func (f *Fallback) NotifyBecameAvailable(ctx context.Context, target monitor.Target) error {
	if f.primary == nil {
		return f.log.NotifyBecameAvailable(ctx, target)
	}
	if err := f.primary.NotifyBecameAvailable(ctx, target); err != nil {
		f.logger.Warn("notification delivery failed, falling back to log",
			zap.String("target_id", target.ID),
			zap.Error(err),
		)
		_ = f.log.NotifyBecameAvailable(ctx, target)
	}
	return nil
}
