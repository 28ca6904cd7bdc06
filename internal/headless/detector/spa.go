package detector

import (
	"strings"
)

const defaultScriptDensityThreshold = 2048

var spaMarkers = []string{
	"__next",
	`id="root"`,
	`id="app"`,
	"data-reactroot",
}

// LooksScriptRendered reports whether markup is probably an unrendered client-side
// app shell: empty, carrying a framework mount point, or small and mostly script.
// Static sessions use it to explain a missing keyword.
func LooksScriptRendered(markup string, threshold int) bool {
	if threshold <= 0 {
		threshold = defaultScriptDensityThreshold
	}
	if strings.TrimSpace(markup) == "" {
		return true
	}
	lower := strings.ToLower(markup)
	for _, marker := range spaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return len(lower) < threshold && scriptShare(lower) >= 25
}

// scriptShare returns the percentage of lower covered by script elements.
func scriptShare(lower string) int {
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	total := len(lower)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			// Unterminated tag swallows the rest of the document.
			covered += total - start
			break
		}
		bodyStart := start + tagEnd + 1
		end := total
		if relEnd := strings.Index(lower[bodyStart:], closeTag); relEnd != -1 {
			end = bodyStart + relEnd + len(closeTag)
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / total
}
