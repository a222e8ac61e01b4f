// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"strings"

	"github.com/woozymasta/pathrules"
)

// TypeAll disables type filtering in FilterEntries.
const TypeAll = "ALL"

// FilterEntries returns live entries whose name contains text (case-insensitive)
// and whose type equals typ (case-insensitive). Empty text matches all names;
// empty typ or TypeAll matches all types.
func (a *Archive) FilterEntries(text string, typ string) []*Entry {
	return filterEntriesByType(filterEntriesByText(a.entries, text), typ)
}

// FilterEntriesByRules returns live entries selected by ordered include/exclude
// name rules. Zero matcher options mean case-insensitive matching with
// default exclude.
func (a *Archive) FilterEntriesByRules(rules []pathrules.Rule, opts pathrules.MatcherOptions) ([]*Entry, error) {
	if opts == (pathrules.MatcherOptions{}) {
		opts = defaultRulesMatcherOptions()
	}

	matcher, err := newNameMatcher(rules, opts)
	if err != nil {
		return nil, err
	}

	return filterEntriesByMatcher(a.entries, matcher), nil
}

// filterEntriesByText keeps entries whose name contains text case-insensitively.
func filterEntriesByText(entries []*Entry, text string) []*Entry {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if needle != "" && !strings.Contains(strings.ToLower(e.Name), needle) {
			continue
		}

		out = append(out, e)
	}

	return out
}

// filterEntriesByType keeps entries of one upper-cased extension type.
func filterEntriesByType(entries []*Entry, typ string) []*Entry {
	typ = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(typ), "."))
	if typ == "" || typ == TypeAll {
		return entries
	}

	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Type() == typ {
			out = append(out, e)
		}
	}

	return out
}

// filterEntriesByMatcher keeps entries included by matcher; nil matcher keeps all.
func filterEntriesByMatcher(entries []*Entry, matcher *nameMatcher) []*Entry {
	if matcher == nil {
		return entries
	}

	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if matcher.Match(e.Name) {
			out = append(out, e)
		}
	}

	return out
}

// nameMatcher holds compiled entry name rules.
type nameMatcher struct {
	matcher *pathrules.Matcher
}

// defaultRulesMatcherOptions returns case-insensitive, default-exclude matching.
func defaultRulesMatcherOptions() pathrules.MatcherOptions {
	return pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   pathrules.ActionExclude,
	}
}

// newNameMatcher compiles name rules. Empty rule set yields nil matcher.
func newNameMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*nameMatcher, error) {
	rules = normalizeNameRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = pathrules.ActionExclude
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile name rules: %w", ErrValidation, err)
	}

	return &nameMatcher{matcher: matcher}, nil
}

// normalizeNameRules trims patterns and drops empty ones.
func normalizeNameRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := strings.TrimSpace(strings.ReplaceAll(rule.Pattern, `\`, `/`))
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether entry name is included by the rules.
func (m *nameMatcher) Match(name string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	if name == "" {
		return false
	}

	return m.matcher.Included(name, false)
}
