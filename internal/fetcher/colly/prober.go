package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

const defaultProbeTimeout = 3 * time.Second

// ProberConfig controls reachability probes.
type ProberConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Prober issues HEAD requests to tell whether a product page answers at all.
type Prober struct {
	cfg  ProberConfig
	base *colly.Collector
}

// NewProber builds a Prober with its own pooled transport.
func NewProber(cfg ProberConfig) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	base := newCollector(newHTTPTransport(), cfg.UserAgent, cfg.Timeout)
	base.ParseHTTPErrorResponse = true
	return &Prober{cfg: cfg, base: base}
}

// Probe returns nil when the page answers with a 2xx or 3xx status, or 405 from
// servers that refuse HEAD. Anything else wraps monitor.ErrUnreachable.
func (p *Prober) Probe(ctx context.Context, rawURL string) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	collector := p.base.Clone()
	collector.Context = probeCtx
	collector.ParseHTTPErrorResponse = true
	collector.AllowURLRevisit = true

	var (
		status      int
		responseErr error
	)
	p.configureHooks(collector, &status, &responseErr)

	if err := runCollector(probeCtx, func() error { return collector.Head(rawURL) }, &responseErr); err != nil {
		return fmt.Errorf("%w: %s: %w", monitor.ErrUnreachable, rawURL, err)
	}
	if !reachableStatus(status) {
		return fmt.Errorf("%w: %s answered %d", monitor.ErrUnreachable, rawURL, status)
	}
	return nil
}

func (p *Prober) configureHooks(hooks collectorHooks, status *int, responseErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*responseErr = err
	})
}

func reachableStatus(status int) bool {
	return (status >= http.StatusOK && status < http.StatusBadRequest) || status == http.StatusMethodNotAllowed
}
