// Package event provides the daemon event model and the EventBus that
// fans events out to subscriber connections.
package event

import (
	"strings"
	"time"
)

// Kind identifies an event. The set is closed; subscribers and tests can
// switch exhaustively over it.
type Kind string

const (
	KindAppLaunched        Kind = "app.launched"
	KindAppFocused         Kind = "app.focused"
	KindAppTerminated      Kind = "app.terminated"
	KindWindowMoved        Kind = "window.moved"
	KindWindowResized      Kind = "window.resized"
	KindWindowMaximized    Kind = "window.maximized"
	KindWindowDisplayMoved Kind = "window.display_moved"
	KindActionFailed       Kind = "action.failed"
	KindHistoryUndone      Kind = "history.undone"
	KindHistoryRedone      Kind = "history.redone"
)

// AllKinds returns every event kind.
func AllKinds() []Kind {
	return []Kind{
		KindAppLaunched,
		KindAppFocused,
		KindAppTerminated,
		KindWindowMoved,
		KindWindowResized,
		KindWindowMaximized,
		KindWindowDisplayMoved,
		KindActionFailed,
		KindHistoryUndone,
		KindHistoryRedone,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// MatchesFilter reports whether k matches a filter pattern.
// Patterns: "*", a dotted prefix like "app.*" or "window.*", or an exact
// kind name.
func (k Kind) MatchesFilter(filter string) bool {
	if filter == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(filter, ".*"); ok {
		return strings.HasPrefix(string(k), prefix+".")
	}
	return string(k) == filter
}

// MatchesAnyFilter reports whether k matches at least one filter. An empty
// filter list matches everything.
func (k Kind) MatchesAnyFilter(filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if k.MatchesFilter(f) {
			return true
		}
	}
	return false
}

// ExpandFilters resolves filter patterns to the concrete kinds they cover.
// Used by the CLI to validate subscribe filters up front.
func ExpandFilters(filters []string) []Kind {
	if len(filters) == 0 {
		return AllKinds()
	}

	seen := make(map[Kind]bool)
	var out []Kind
	for _, f := range filters {
		if f == "*" {
			return AllKinds()
		}
		for _, k := range AllKinds() {
			if k.MatchesFilter(f) && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Event is an immutable record of a daemon-observed occurrence. Seq is
// globally monotonic across all kinds and never reused.
type Event struct {
	Seq  uint64    `json:"seq"`
	Ts   time.Time `json:"ts"`
	Kind Kind      `json:"kind"`
	Data any       `json:"data,omitempty"`
}

// AppPayload is the data for app.* events.
type AppPayload struct {
	App       string `json:"app"`
	PID       int32  `json:"pid"`
	MatchType string `json:"match_type,omitempty"`
	Distance  int    `json:"distance,omitempty"`
}

// WindowPayload is the data for window.* events.
type WindowPayload struct {
	App       string `json:"app"`
	PID       int32  `json:"pid"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Display   string `json:"display,omitempty"`
	MatchType string `json:"match_type,omitempty"`
	Distance  int    `json:"distance,omitempty"`
}

// FailurePayload is the data for action.failed events.
type FailurePayload struct {
	Action string `json:"action"`
	Query  string `json:"query,omitempty"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// HistoryPayload is the data for history.* events.
type HistoryPayload struct {
	Action string `json:"action"` // the action kind being reversed or replayed
	App    string `json:"app"`
	PID    int32  `json:"pid"`
}
