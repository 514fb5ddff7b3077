// Package heuristics holds the shared text-parsing helpers used by every
// driver. All functions are pure: deterministic, no I/O, and they never
// fail; unparseable input yields empty results.
package heuristics

import (
	"net/url"
	"regexp"
	"strings"
)

// noisePrefix matches the junk that vendors prepend to listing titles:
// item-number tags ("U12345 Used "), refurb branding, and classified-ad
// shouting.
var noisePrefix = regexp.MustCompile(`(?i)^(U\d+\s+Used\s+|Certified Pre-Loved\s+|Used\s+|FS:\s+|FOR\s+|SALE\s+|NEW\s+)`)

// NormalizeURL resolves href against base. Absolute URLs pass through
// unchanged; anything unresolvable comes back as-is.
func NormalizeURL(href, base string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// SplitManufacturerModel extracts a manufacturer and model from a free-text
// listing title. The first token after noise-prefix stripping is the
// manufacturer. The model is the next tokens, capped at three words when the
// title runs longer than four tokens; short titles keep their full tail.
// Titles with fewer than two remaining tokens yield ("", "").
func SplitManufacturerModel(title string) (manufacturer, model string) {
	if title == "" {
		return "", ""
	}

	cleaned := noisePrefix.ReplaceAllString(title, "")
	parts := strings.Fields(cleaned)
	if len(parts) < 2 {
		return "", ""
	}

	end := len(parts)
	if len(parts) > 3 {
		end = 4
	}
	return parts[0], strings.Join(parts[1:end], " ")
}

// ExtractPrice returns the trimmed price text if it begins with a dollar
// sign, "" otherwise. Non-dollar currencies are deliberately rejected.
func ExtractPrice(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "$") {
		return trimmed
	}
	return ""
}
