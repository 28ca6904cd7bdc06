// Package headless provides browser-backed rendering sessions via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

// Config controls the browser and per-page timeouts.
type Config struct {
	UserAgent         string
	ExecPath          string
	NoSandbox         bool
	DisableImages     bool
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	SettleDelay       time.Duration
	Headers           http.Header
}

// Factory launches browsers through a shared exec allocator. Each session owns
// its own browser process so a crash takes down only that session.
type Factory struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewFactory prepares the exec allocator. Browsers launch in NewSession.
func NewFactory(cfg Config, logger *zap.Logger) (*Factory, error) {
	if cfg.NavigationTimeout < 0 || cfg.ReadyTimeout < 0 || cfg.SettleDelay < 0 {
		return nil, errors.New("headless timeouts must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Factory{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Close stops the browser process.
func (f *Factory) Close() {
	f.allocCancel()
}

// NewSession launches a browser and prepares its tab with the configured identity.
func (f *Factory) NewSession(ctx context.Context) (monitor.Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	stop := forwardCancel(ctx, tabCancel)
	defer stop()

	if err := chromedp.Run(tabCtx, f.networkSetupAction()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("start browser tab: %w", err)
	}
	return &session{
		cfg:    f.cfg,
		tab:    tabCtx,
		cancel: tabCancel,
		logger: f.logger,
	}, nil
}

func (f *Factory) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(f.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(f.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// session is one browser tab. The tab context outlives individual calls, so each
// call derives a bounded child and forwards the caller's cancellation into it.
type session struct {
	cfg    Config
	tab    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (s *session) Ping(ctx context.Context) error {
	var result int
	return s.run(ctx, 0, chromedp.Evaluate(`1`, &result))
}

func (s *session) Reset(ctx context.Context) error {
	return s.run(ctx, 0,
		network.ClearBrowserCookies(),
		chromedp.Navigate("about:blank"),
	)
}

// Render navigates and waits for the body. A navigation or readiness timeout
// leaves whatever loaded in place for HTML to capture.
func (s *session) Render(ctx context.Context, url string) error {
	meta := newResponseMeta()
	runCtx, cancel, err := s.derive(ctx, s.navTimeout())
	if err != nil {
		return err
	}
	defer cancel()
	chromedp.ListenTarget(runCtx, meta.captureEvent)

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return s.renderError(runCtx, url, "navigate", err)
	}
	if err := s.waitReady(runCtx); err != nil {
		return s.renderError(runCtx, url, "wait ready", err)
	}
	if s.cfg.SettleDelay > 0 {
		if err := chromedp.Run(runCtx, chromedp.Sleep(s.cfg.SettleDelay)); err != nil {
			return s.renderError(runCtx, url, "settle", err)
		}
	}
	if status, _, final := meta.snapshot(); status >= http.StatusBadRequest {
		s.logger.Debug("page answered with error status",
			zap.String("url", final),
			zap.Int("status", status),
		)
	}
	return nil
}

func (s *session) waitReady(ctx context.Context) error {
	readyCtx := ctx
	if s.cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		readyCtx, cancel = context.WithTimeout(ctx, s.cfg.ReadyTimeout)
		defer cancel()
	}
	if err := chromedp.Run(readyCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("body not ready: %w", err)
	}
	return nil
}

func (s *session) renderError(ctx context.Context, url, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s: %w", monitor.ErrRenderTimeout, step, url, err)
	}
	return fmt.Errorf("%s %s: %w", step, url, err)
}

func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := chromedp.Cancel(s.tab); err != nil && !errors.Is(err, context.Canceled) {
		s.cancel()
		return fmt.Errorf("close tab: %w", err)
	}
	s.cancel()
	return nil
}

func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel, err := s.derive(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// derive returns a child of the tab context bounded by timeout (when > 0) and
// cancelled together with ctx.
func (s *session) derive(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil, errors.New("browser tab closed")
	}

	var (
		child  context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		child, cancel = context.WithTimeout(s.tab, timeout)
	} else {
		child, cancel = context.WithCancel(s.tab)
	}
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		child, cancelDeadline = context.WithDeadline(child, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	stop := forwardCancel(ctx, cancel)
	return child, func() { stop(); cancel() }, nil
}

// forwardCancel calls cancel when ctx ends. The returned func detaches it.
func forwardCancel(ctx context.Context, cancel context.CancelFunc) func() bool {
	return context.AfterFunc(ctx, cancel)
}

func (s *session) navTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return 10 * time.Second
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshot() (int, bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.status != 0, m.url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
