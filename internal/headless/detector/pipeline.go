// Package detector decides whether a rendered product page can be bought.
package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

// DefaultUnavailablePhrases mark a purchase control as out of stock.
var DefaultUnavailablePhrases = []string{"out of stock", "sold out", "notify me", "unavailable"}

const defaultProximity = 200

// Config tunes the pipeline.
type Config struct {
	// Keyword is used when Detect is called with an empty keyword.
	Keyword string
	// SelectorHint is tried before the built-in structured selectors.
	SelectorHint       string
	UnavailablePhrases []string
	// Proximity is how many bytes around a keyword occurrence are searched for
	// an unavailable phrase by the markup strategy.
	Proximity int
	// ScriptDensityThreshold marks small pages as script rendered; see LooksScriptRendered.
	ScriptDensityThreshold int
}

type strategy struct {
	name string
	eval func(pg *page, keyword string) monitor.Verdict
}

// Pipeline runs ordered strategies and returns the first conclusive verdict.
type Pipeline struct {
	cfg        Config
	phrases    []string
	structured []string
	strategies []strategy
	logger     *zap.Logger
}

// New builds a pipeline from cfg.
func New(cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Proximity <= 0 {
		cfg.Proximity = defaultProximity
	}
	phrases := cfg.UnavailablePhrases
	if len(phrases) == 0 {
		phrases = DefaultUnavailablePhrases
	}
	lowered := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" {
			lowered = append(lowered, phrase)
		}
	}

	structured := make([]string, 0, len(structuredSelectors)+1)
	if hint := strings.TrimSpace(cfg.SelectorHint); hint != "" {
		structured = append(structured, hint)
	}
	structured = append(structured, structuredSelectors...)

	p := &Pipeline{
		cfg:        cfg,
		phrases:    lowered,
		structured: structured,
		logger:     logger,
	}
	p.strategies = []strategy{
		{name: "structured", eval: p.structuredStrategy},
		{name: "interactive", eval: p.interactiveStrategy},
		{name: "markup", eval: p.markupStrategy},
	}
	return p
}

// Detect captures the session's markup once and evaluates it.
func (p *Pipeline) Detect(ctx context.Context, session monitor.Session, keyword string) (monitor.Detection, error) {
	if session == nil {
		return monitor.Detection{}, fmt.Errorf("%w: nil session", monitor.ErrDetection)
	}
	markup, err := session.HTML(ctx)
	if err != nil {
		return monitor.Detection{}, fmt.Errorf("%w: %w: capture markup: %w", monitor.ErrDetection, monitor.ErrSessionBroken, err)
	}
	return p.Evaluate(markup, keyword)
}

// Evaluate runs the strategies against already captured markup.
func (p *Pipeline) Evaluate(markup, keyword string) (monitor.Detection, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		keyword = strings.TrimSpace(p.cfg.Keyword)
	}
	if keyword == "" {
		return monitor.Detection{}, fmt.Errorf("%w: empty keyword", monitor.ErrDetection)
	}

	pg, err := newPage(markup)
	if err != nil {
		return monitor.Detection{}, fmt.Errorf("%w: parse markup: %w", monitor.ErrDetection, err)
	}

	for _, s := range p.strategies {
		verdict, err := p.run(s, pg, keyword)
		if err != nil {
			return monitor.Detection{Markup: markup}, err
		}
		if verdict != monitor.VerdictInconclusive {
			return monitor.Detection{Verdict: verdict, Strategy: s.name, Markup: markup}, nil
		}
	}

	if LooksScriptRendered(markup, p.cfg.ScriptDensityThreshold) {
		p.logger.Warn("keyword missing from a page that looks script rendered",
			zap.String("keyword", keyword),
			zap.Int("markup_bytes", len(markup)),
		)
	}
	return monitor.Detection{Verdict: monitor.VerdictNotFound, Markup: markup}, nil
}

func (p *Pipeline) run(s strategy, pg *page, keyword string) (verdict monitor.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s strategy panicked: %v", monitor.ErrDetection, s.name, r)
		}
	}()
	return s.eval(pg, keyword), nil
}

// page is one parsed capture shared by all strategies.
type page struct {
	doc      *goquery.Document
	raw      string
	bodyText string
}

func newPage(markup string) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	pg := &page{raw: strings.ToLower(markup)}
	// Script and style contents are not visible text.
	doc.Find("script, style, noscript, template").Remove()
	pg.doc = doc
	pg.bodyText = strings.ToLower(doc.Find("body").Text())
	return pg, nil
}
