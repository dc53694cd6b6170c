package report

import "strings"

// placeholderFragments appear in event "names" that are really platform
// error notices saved as selections.
var placeholderFragments = []string{
	"maximum nu",
	"subscription",
	"error",
	"failed",
	"doesn't include",
	"not include",
	"your current subscription pack",
}

// IsPlaceholderEvent reports whether name is empty or an error notice
// rather than a real in-app event.
func IsPlaceholderEvent(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return true
	}
	for _, f := range placeholderFragments {
		if strings.Contains(n, f) {
			return true
		}
	}
	return false
}

// cleanSelections trims names and drops blanks.
func cleanSelections(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// realEvents returns the selections worth fetching events for.
func realEvents(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		if !IsPlaceholderEvent(n) {
			out[strings.TrimSpace(n)] = true
		}
	}
	return out
}
