package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/restock-watch/internal/monitor"
)

var structuredSelectors = []string{
	"div[class*='usBtn']",
	"div[class*='btn']",
	"div[class*='Btn']",
}

const interactiveSelector = "button, input[type=button], input[type=submit], a[role=button], " +
	"[onclick], [role=button], [class*=btn], [class*=Btn], [class*=button], [class*=Button]"

func (p *Pipeline) structuredStrategy(pg *page, keyword string) monitor.Verdict {
	for _, selector := range p.structured {
		found := false
		pg.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if containsFold(s.Text(), keyword) && visible(s) {
				found = true
				return false
			}
			return true
		})
		if found {
			return monitor.VerdictFound
		}
	}
	return monitor.VerdictInconclusive
}

func (p *Pipeline) interactiveStrategy(pg *page, keyword string) monitor.Verdict {
	found, disabled := false, false
	pg.doc.Find(interactiveSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !containsFold(controlText(s), keyword) {
			return true
		}
		if isDisabled(s) {
			disabled = true
			return true
		}
		if visible(s) {
			found = true
			return false
		}
		return true
	})
	switch {
	case found:
		return monitor.VerdictFound
	case disabled:
		return monitor.VerdictUnavailable
	case containsAny(pg.bodyText, p.phrases):
		return monitor.VerdictUnavailable
	}
	return monitor.VerdictInconclusive
}

// markupStrategy scans the raw capture, including markup the DOM strategies
// could not see. An occurrence counts as available unless an unavailable
// phrase sits within the proximity window around it.
func (p *Pipeline) markupStrategy(pg *page, keyword string) monitor.Verdict {
	kw := strings.ToLower(keyword)
	raw := pg.raw
	idx := strings.Index(raw, kw)
	if idx < 0 {
		return monitor.VerdictNotFound
	}
	for idx >= 0 {
		start := max(0, idx-p.cfg.Proximity)
		end := min(len(raw), idx+len(kw)+p.cfg.Proximity)
		if !containsAny(raw[start:end], p.phrases) {
			return monitor.VerdictFound
		}
		next := strings.Index(raw[idx+len(kw):], kw)
		if next < 0 {
			break
		}
		idx += len(kw) + next
	}
	return monitor.VerdictUnavailable
}

func controlText(s *goquery.Selection) string {
	text := s.Text()
	if value, ok := s.Attr("value"); ok {
		text += " " + value
	}
	if label, ok := s.Attr("aria-label"); ok {
		text += " " + label
	}
	return text
}

func isDisabled(s *goquery.Selection) bool {
	if _, ok := s.Attr("disabled"); ok {
		return true
	}
	if v, ok := s.Attr("aria-disabled"); ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		return true
	}
	return false
}

// visible walks the element and its ancestors looking for anything that hides it.
func visible(s *goquery.Selection) bool {
	for n := s.First(); n.Length() > 0; n = n.Parent() {
		if hidden(n) {
			return false
		}
	}
	return true
}

func hidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	if v, ok := s.Attr("aria-hidden"); ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		return true
	}
	if goquery.NodeName(s) == "input" {
		if t, _ := s.Attr("type"); strings.EqualFold(t, "hidden") {
			return true
		}
	}
	style, ok := s.Attr("style")
	if !ok {
		return false
	}
	style = strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func containsFold(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
