package listing

import (
	"net/url"
	"strings"
)

// UnknownDomain is reported for links whose host cannot be parsed
const UnknownDomain = "unknown"

// NormalizeURL trims the input and adds https:// when no http(s) scheme is
// present. Empty input stays empty.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "https://" + trimmed
	}
	return trimmed
}

// ExtractDomain returns the host of a link without a leading "www."
func ExtractDomain(raw string) string {
	u, err := url.Parse(NormalizeURL(raw))
	if err != nil || u.Hostname() == "" {
		return UnknownDomain
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
