package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/publisher/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var (
	testClock  = fixedClock{now: time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)}
	testTarget = monitor.Target{
		ID:        "t-1",
		ProductID: "1739",
		Name:      "Some Name",
		URL:       "https://shop.example.com/us/products/1739/Some-Name",
		Owner:     "alice",
	}
)

func TestWebhookPostsEmbed(t *testing.T) {
	t.Parallel()

	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second, testClock).NotifyBecameAvailable(context.Background(), testTarget)
	require.NoError(t, err)
	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	require.Equal(t, "Some Name is back in stock", embed.Title)
	require.Equal(t, testTarget.URL, embed.URL)
	require.Equal(t, "2026-05-04T10:30:00Z", embed.Timestamp)
	require.Equal(t, "1739", embed.Fields[0].Value)
}

func TestWebhookRejectsNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second, testClock).NotifyBecameAvailable(context.Background(), testTarget)
	require.ErrorContains(t, err, "429")
}

func TestWebhookTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	err := NewWebhook(srv.URL, 50*time.Millisecond, testClock).NotifyBecameAvailable(context.Background(), testTarget)
	require.Error(t, err)
}

func TestWebhookFallsBackToProductName(t *testing.T) {
	t.Parallel()

	target := testTarget
	target.Name = ""
	payload := NewWebhook("http://unused", 0, testClock).payload(target)
	require.Equal(t, "Product 1739 is back in stock", payload.Embeds[0].Title)
}

func TestPublisherNotifier(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	n := NewPublisher(pub, "restock-events", testClock)
	require.NoError(t, n.NotifyBecameAvailable(context.Background(), testTarget))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "restock-events", msgs[0].Topic)
	event, ok := msgs[0].Payload.(Event)
	require.True(t, ok)
	require.Equal(t, EventBecameAvailable, event.Type)
	require.Equal(t, "t-1", event.TargetID)
	require.Equal(t, testClock.now, event.OccurredAt)
	require.Equal(t, "became_available", event.Attributes()["event"])

	pub.FailWith(errors.New("broker down"))
	require.Error(t, n.NotifyBecameAvailable(context.Background(), testTarget))
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	require.NoError(t, NewLog(zap.New(core)).NotifyBecameAvailable(context.Background(), testTarget))

	entries := logs.FilterMessage("product back in stock").All()
	require.Len(t, entries, 1)
	require.Equal(t, "1739", entries[0].ContextMap()["product_id"])
}

func TestFallbackSwallowsPrimaryFailure(t *testing.T) {
	t.Parallel()

	primary := &MockNotifier{}
	primary.On("NotifyBecameAvailable", mock.Anything, testTarget).Return(errors.New("webhook down")).Once()

	core, logs := observer.New(zapcore.InfoLevel)
	f := NewFallback(primary, zap.New(core))
	require.NoError(t, f.NotifyBecameAvailable(context.Background(), testTarget))

	primary.AssertExpectations(t)
	require.Equal(t, 1, logs.FilterMessage("notification delivery failed, falling back to log").Len())
	require.Equal(t, 1, logs.FilterMessage("product back in stock").Len())
}

func TestFallbackPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	primary := &MockNotifier{}
	primary.On("NotifyBecameAvailable", mock.Anything, testTarget).Return(nil).Once()

	core, logs := observer.New(zapcore.InfoLevel)
	require.NoError(t, NewFallback(primary, zap.New(core)).NotifyBecameAvailable(context.Background(), testTarget))
	primary.AssertExpectations(t)
	require.Zero(t, logs.Len())

	require.NoError(t, NewFallback(nil, nil).NotifyBecameAvailable(context.Background(), testTarget))
}
