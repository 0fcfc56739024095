// Package links finds URL-like substrings in free text.
package links

import (
	"strings"

	"mvdan.cc/xurls/v2"
)

var strict = xurls.Strict()

// Extract returns the distinct URLs in text, in order of first appearance.
func Extract(text string) []string {
	found := strict.FindAllString(text, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, u := range found {
		u = strings.TrimRight(u, ".,;")
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Merge appends the links of extra not already present in base.
func Merge(base []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, l := range base {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	for _, l := range extra {
		if _, ok := seen[l]; ok || l == "" {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Format renders links as a "- url" list.
func Format(items []string) string {
	lines := make([]string, 0, len(items))
	for _, l := range items {
		lines = append(lines, "- "+l)
	}
	return strings.Join(lines, "\n")
}
