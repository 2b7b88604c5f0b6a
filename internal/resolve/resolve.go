// Package resolve maps a user-supplied application name to a running
// application. Matching is a pure cascade over a frozen snapshot: exact
// name, then prefix, then bounded edit distance. Results are deterministic
// for identical inputs; ties inside a tier break alphabetically.
package resolve

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// AppInfo is a snapshot of one running application.
type AppInfo struct {
	Name  string `json:"name"`
	PID   int32  `json:"pid"`
	Class string `json:"class,omitempty"` // X11 WM_CLASS, when known
}

// MatchType identifies which cascade tier produced a match.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
	MatchFuzzy  MatchType = "fuzzy"
)

// MatchResult is a resolved application plus match diagnostics.
type MatchResult struct {
	App      AppInfo   `json:"app"`
	Type     MatchType `json:"match_type"`
	Distance int       `json:"distance,omitempty"` // set for fuzzy matches
}

// Describe renders the result for logs and replies.
func (r *MatchResult) Describe() string {
	switch r.Type {
	case MatchExact:
		return "\"" + r.App.Name + "\" (exact match)"
	case MatchPrefix:
		return "\"" + r.App.Name + "\" (prefix match)"
	default:
		return "\"" + r.App.Name + "\" (fuzzy match)"
	}
}

// Find resolves query against apps. The cascade short-circuits at the
// first tier with any candidate:
//  1. case-insensitive exact name equality, first candidate wins
//  2. case-insensitive prefix match, alphabetically first wins
//  3. Levenshtein distance over lower-cased names within fuzzyThreshold,
//     minimum distance wins, ties broken alphabetically
//
// Returns nil when no tier matches.
func Find(query string, apps []AppInfo, fuzzyThreshold int) *MatchResult {
	queryLower := strings.ToLower(query)

	// 1. exact
	for _, app := range apps {
		if strings.ToLower(app.Name) == queryLower {
			return &MatchResult{App: app, Type: MatchExact}
		}
	}

	// 2. prefix, alphabetically first
	var prefix []AppInfo
	for _, app := range apps {
		if strings.HasPrefix(strings.ToLower(app.Name), queryLower) {
			prefix = append(prefix, app)
		}
	}
	if len(prefix) > 0 {
		sort.Slice(prefix, func(i, j int) bool {
			return strings.ToLower(prefix[i].Name) < strings.ToLower(prefix[j].Name)
		})
		return &MatchResult{App: prefix[0], Type: MatchPrefix}
	}

	// 3. fuzzy, minimum distance then alphabetical
	type scored struct {
		app  AppInfo
		dist int
	}
	var fuzzy []scored
	for _, app := range apps {
		d := levenshtein.Distance(queryLower, strings.ToLower(app.Name), nil)
		if d <= fuzzyThreshold {
			fuzzy = append(fuzzy, scored{app: app, dist: d})
		}
	}
	if len(fuzzy) > 0 {
		sort.Slice(fuzzy, func(i, j int) bool {
			if fuzzy[i].dist != fuzzy[j].dist {
				return fuzzy[i].dist < fuzzy[j].dist
			}
			return strings.ToLower(fuzzy[i].app.Name) < strings.ToLower(fuzzy[j].app.Name)
		})
		return &MatchResult{App: fuzzy[0].app, Type: MatchFuzzy, Distance: fuzzy[0].dist}
	}

	return nil
}
