package core

import (
	"strings"

	"github.com/apiary-labs/apiary/internal/store"
)

// Filter is a predicate combinator over catalog entries: values within one
// field are OR-ed, the fields themselves are AND-ed. An empty field matches
// everything.
type Filter struct {
	Categories    []string
	Statuses      []string
	AuthTypes     []string
	Pricing       []string
	Tags          []string
	FavoritesOnly bool
	Keyword       string
}

// IsZero reports whether the filter matches unconditionally.
func (f *Filter) IsZero() bool {
	return len(f.Categories) == 0 && len(f.Statuses) == 0 && len(f.AuthTypes) == 0 &&
		len(f.Pricing) == 0 && len(f.Tags) == 0 && !f.FavoritesOnly && f.Keyword == ""
}

// Match evaluates the combined predicate against one entry.
func (f *Filter) Match(e *store.APIEntry) bool {
	if f.FavoritesOnly && !e.IsFavorite {
		return false
	}
	if !matchAny(f.Categories, e.Category) {
		return false
	}
	if !matchAny(f.Statuses, e.Status) {
		return false
	}
	if !matchAny(f.AuthTypes, e.AuthType) {
		return false
	}
	if !matchAny(f.Pricing, e.Pricing) {
		return false
	}
	if len(f.Tags) > 0 && !hasAnyTag(e, f.Tags) {
		return false
	}
	if f.Keyword != "" && !matchKeyword(e, f.Keyword) {
		return false
	}
	return true
}

// Apply filters a listing, preserving order.
func (f *Filter) Apply(entries []store.APIEntry) []store.APIEntry {
	if f.IsZero() {
		return entries
	}
	out := make([]store.APIEntry, 0, len(entries))
	for i := range entries {
		if f.Match(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

func matchAny(selected []string, value string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, s := range selected {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

func hasAnyTag(e *store.APIEntry, tags []string) bool {
	for _, t := range tags {
		if e.HasTag(t) {
			return true
		}
	}
	return false
}

func matchKeyword(e *store.APIEntry, keyword string) bool {
	k := strings.ToLower(keyword)
	return strings.Contains(strings.ToLower(e.Name), k) ||
		strings.Contains(strings.ToLower(e.Provider), k) ||
		strings.Contains(strings.ToLower(e.Description), k)
}
