package monitor

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// productPath matches /{locale}/products/{id}[/{slug}...].
var productPath = regexp.MustCompile(`^/[a-z]{2}(?:-[a-z]{2})?/products/(\d{1,10})(?:/.*)?$`)

var productIDPattern = regexp.MustCompile(`^\d{1,10}$`)

// ValidateURL checks that raw is an absolute http(s) URL whose host is allowed.
// An empty allowedHosts list accepts any host; otherwise the host must equal an
// entry or be a subdomain of one.
func ValidateURL(raw string, allowedHosts []string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	if len(allowedHosts) == 0 {
		return u, nil
	}
	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: host %q is not allowed", ErrInvalidURL, host)
}

// ExtractProductID returns the numeric product identifier embedded in a product URL.
func ExtractProductID(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	m := productPath.FindStringSubmatch(u.EscapedPath())
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsValidProductID reports whether id looks like a product identifier (1-10 digits).
func IsValidProductID(id string) bool {
	return productIDPattern.MatchString(id)
}

// ExtractProductName derives a display name from the URL slug that follows the
// product identifier. Dashes become spaces. Falls back to "Product <id>".
func ExtractProductName(raw string) string {
	id, ok := ExtractProductID(raw)
	if !ok {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "Product " + id
	}
	slug := path.Base(strings.TrimRight(u.Path, "/"))
	if slug == id || slug == "." || slug == "/" {
		return "Product " + id
	}
	name := strings.Join(strings.Fields(strings.ReplaceAll(slug, "-", " ")), " ")
	if name == "" {
		return "Product " + id
	}
	return name
}
