package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/restock-watch/internal/metrics"
	"github.com/JakeFAU/restock-watch/internal/monitor"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	embedColorGreen       = 0x2ECC71
)

// Webhook posts a chat-style embed to a webhook URL.
type Webhook struct {
	url    string
	client *http.Client
	clock  monitor.Clock
}

// NewWebhook returns a webhook notifier. Timeout <= 0 uses a 5s default.
func NewWebhook(url string, timeout time.Duration, clock monitor.Clock) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, clock: clock}
}

type webhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []webhookField `json:"fields,omitempty"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func (w *Webhook) payload(target monitor.Target) webhookPayload {
	name := target.Name
	if name == "" {
		name = "Product " + target.ProductID
	}
	return webhookPayload{
		Embeds: []webhookEmbed{{
			Title:       name + " is back in stock",
			URL:         target.URL,
			Description: "The product can be added to the bag again.",
			Color:       embedColorGreen,
			Timestamp:   w.clock.Now().UTC().Format(time.RFC3339),
			Fields: []webhookField{
				{Name: "Product ID", Value: target.ProductID, Inline: true},
				{Name: "Target", Value: target.ID, Inline: true},
			},
		}},
	}
}

// NotifyBecameAvailable posts the embed. Any non-2xx answer is an error.
func (w *Webhook) NotifyBecameAvailable(ctx context.Context, target monitor.Target) (err error) {
	defer func() { metrics.ObserveNotification("webhook", err) }()

	body, err := json.Marshal(w.payload(target))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	}
	return nil
}
