package dispatch

import (
	"errors"
	"fmt"
)

// ErrTimeout reports that a window action exceeded the configured bound.
var ErrTimeout = errors.New("action timed out")

// AppNotFoundError reports that no running application matched the query.
type AppNotFoundError struct {
	Query string
}

func (e *AppNotFoundError) Error() string {
	return fmt.Sprintf("no application matching %q", e.Query)
}

// ActionError wraps a window-system failure for an otherwise valid request.
type ActionError struct {
	Action string
	App    string
	Cause  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %q failed: %v", e.Action, e.App, e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }
