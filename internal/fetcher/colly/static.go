package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

const defaultRenderTimeout = 10 * time.Second

var errSessionClosed = errors.New("static session closed")

// StaticConfig controls plain HTTP sessions used when no browser is available.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// StaticFactory creates sessions that fetch pages without executing scripts.
// Sessions share one transport but keep separate cookie jars.
type StaticFactory struct {
	cfg       StaticConfig
	transport http.RoundTripper
}

// NewStaticFactory builds a StaticFactory.
func NewStaticFactory(cfg StaticConfig) *StaticFactory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRenderTimeout
	}
	return &StaticFactory{cfg: cfg, transport: newHTTPTransport()}
}

// NewSession implements monitor.SessionFactory.
func (f *StaticFactory) NewSession(context.Context) (monitor.Session, error) {
	return &staticSession{
		collector: newCollector(f.transport, f.cfg.UserAgent, f.cfg.Timeout),
		timeout:   f.cfg.Timeout,
	}, nil
}

type staticSession struct {
	mu        sync.Mutex
	collector *colly.Collector
	timeout   time.Duration
	html      string
	closed    bool
}

func (s *staticSession) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	return nil
}

func (s *staticSession) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("new cookie jar: %w", err)
	}
	s.collector.SetCookieJar(jar)
	s.html = ""
	return nil
}

func (s *staticSession) Render(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}

	renderCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Clones share the transport and cookie jar but start without callbacks.
	collector := s.collector.Clone()
	collector.Context = renderCtx
	capture := &pageCapture{}
	collector.OnResponse(func(r *colly.Response) {
		capture.set(r.Body, nil)
	})
	collector.OnError(func(r *colly.Response, err error) {
		var body []byte
		if r != nil {
			body = r.Body
		}
		capture.set(body, err)
	})

	var responseErr error
	err := runCollector(renderCtx, func() error {
		visitErr := collector.Visit(url)
		responseErr = capture.err()
		return visitErr
	}, &responseErr)
	s.html = capture.body()
	if err != nil {
		if isTimeout(err) || errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", monitor.ErrRenderTimeout, url, err)
		}
		return fmt.Errorf("render %s: %w", url, err)
	}
	return nil
}

func (s *staticSession) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errSessionClosed
	}
	return s.html, nil
}

func (s *staticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.html = ""
	return nil
}

type pageCapture struct {
	mu      sync.Mutex
	markup  string
	failure error
}

func (c *pageCapture) set(body []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(body) > 0 {
		c.markup = string(body)
	}
	if err != nil {
		c.failure = err
	}
}

func (c *pageCapture) body() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markup
}

func (c *pageCapture) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}
