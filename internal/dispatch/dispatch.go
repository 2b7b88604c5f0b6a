// Package dispatch serializes window actions: it resolves the target
// application, executes the controller call under a timeout, records the
// action in history and publishes the matching event.
package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/1broseidon/sashd/internal/event"
	"github.com/1broseidon/sashd/internal/history"
	"github.com/1broseidon/sashd/internal/resolve"
	"github.com/1broseidon/sashd/internal/wm"
)

// Action kinds as recorded in history and reported in failure events.
const (
	ActionFocus       = "focus"
	ActionMove        = "move"
	ActionResize      = "resize"
	ActionMaximize    = "maximize"
	ActionMoveDisplay = "move_display"
)

// Result is the outcome of a successful action: which application was
// matched and, for geometry actions, the resulting geometry.
type Result struct {
	Match    resolve.MatchResult `json:"match"`
	Geometry *wm.Geometry        `json:"geometry,omitempty"`
}

// Dispatcher owns the serialized action pipeline. One action runs at a
// time; concurrent requests queue on the mutex. History is only appended
// after the controller call succeeds, so failed actions never consume
// undo depth.
type Dispatcher struct {
	mu sync.Mutex

	ctrl   wm.Controller
	lister wm.Lister
	hist   *history.Store
	bus    *event.Bus

	fuzzyThreshold int
	timeout        time.Duration
	logger         *zap.Logger
}

// Options configures a Dispatcher.
type Options struct {
	Controller     wm.Controller
	Lister         wm.Lister
	History        *history.Store
	Bus            *event.Bus
	FuzzyThreshold int
	Timeout        time.Duration
	Logger         *zap.Logger
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		ctrl:           opts.Controller,
		lister:         opts.Lister,
		hist:           opts.History,
		bus:            opts.Bus,
		fuzzyThreshold: opts.FuzzyThreshold,
		timeout:        opts.Timeout,
		logger:         logger,
	}
}

// Focus activates the application matching query.
func (d *Dispatcher) Focus(query string) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	match, err := d.resolveTarget(ActionFocus, query)
	if err != nil {
		return nil, err
	}

	prevFocus := d.captureFocus()

	if err := d.run(func() error { return d.ctrl.Focus(match.App) }); err != nil {
		return nil, d.fail(ActionFocus, query, match, err)
	}

	d.hist.Append(history.Record{
		ID:        uuid.NewString(),
		Ts:        time.Now().UTC(),
		Kind:      ActionFocus,
		App:       match.App.Name,
		PID:       match.App.PID,
		PrevFocus: prevFocus,
	})
	d.bus.Publish(event.KindAppFocused, event.AppPayload{
		App:       match.App.Name,
		PID:       match.App.PID,
		MatchType: string(match.Type),
		Distance:  match.Distance,
	})
	d.logger.Info("focused", zap.String("app", match.App.Name), zap.String("match", string(match.Type)))
	return &Result{Match: *match}, nil
}

// Move repositions the matched application's window.
func (d *Dispatcher) Move(query string, x, y int) (*Result, error) {
	return d.geometryAction(ActionMove, query, event.KindWindowMoved,
		func(app resolve.AppInfo) error { return d.ctrl.Move(app, x, y) })
}

// Resize changes the matched application's window size.
func (d *Dispatcher) Resize(query string, width, height int) (*Result, error) {
	return d.geometryAction(ActionResize, query, event.KindWindowResized,
		func(app resolve.AppInfo) error { return d.ctrl.Resize(app, width, height) })
}

// Maximize fills the matched application's current display.
func (d *Dispatcher) Maximize(query string) (*Result, error) {
	return d.geometryAction(ActionMaximize, query, event.KindWindowMaximized,
		func(app resolve.AppInfo) error { return d.ctrl.Maximize(app) })
}

// MoveDisplay places the matched application's window on another display.
func (d *Dispatcher) MoveDisplay(query, target string) (*Result, error) {
	return d.geometryAction(ActionMoveDisplay, query, event.KindWindowDisplayMoved,
		func(app resolve.AppInfo) error { return d.ctrl.MoveDisplay(app, target) })
}

// State returns the matched application's current geometry. Read-only:
// no history record and no event.
func (d *Dispatcher) State(query string) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	match, err := d.resolveTarget("get_state", query)
	if err != nil {
		return nil, err
	}

	var geom *wm.Geometry
	if err := d.run(func() error {
		g, err := d.ctrl.State(match.App)
		geom = g
		return err
	}); err != nil {
		return nil, d.fail("get_state", query, match, err)
	}
	return &Result{Match: *match, Geometry: geom}, nil
}

// Undo reverses the most recent recorded action.
func (d *Dispatcher) Undo() (*history.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, err := d.hist.Undo()
	if err != nil {
		return nil, err
	}

	if err := d.applyUndo(rec); err != nil {
		d.publishFailure("undo", "", err)
		return nil, &ActionError{Action: "undo", App: rec.App, Cause: err}
	}

	d.bus.Publish(event.KindHistoryUndone, event.HistoryPayload{
		Action: rec.Kind,
		App:    rec.App,
		PID:    rec.PID,
	})
	d.logger.Info("undone", zap.String("action", rec.Kind), zap.String("app", rec.App))
	return rec, nil
}

// Redo replays the most recently undone action.
func (d *Dispatcher) Redo() (*history.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, err := d.hist.Redo()
	if err != nil {
		return nil, err
	}

	if err := d.applyRedo(rec); err != nil {
		d.publishFailure("redo", "", err)
		return nil, &ActionError{Action: "redo", App: rec.App, Cause: err}
	}

	d.bus.Publish(event.KindHistoryRedone, event.HistoryPayload{
		Action: rec.Kind,
		App:    rec.App,
		PID:    rec.PID,
	})
	d.logger.Info("redone", zap.String("action", rec.Kind), zap.String("app", rec.App))
	return rec, nil
}

// geometryAction is the shared pipeline for actions that change window
// geometry: resolve, snapshot prev, execute, snapshot next, record, publish.
func (d *Dispatcher) geometryAction(action, query string, kind event.Kind, call func(resolve.AppInfo) error) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	match, err := d.resolveTarget(action, query)
	if err != nil {
		return nil, err
	}

	var prev *wm.Geometry
	_ = d.run(func() error {
		g, err := d.ctrl.State(match.App)
		prev = g
		return err
	})

	if err := d.run(func() error { return call(match.App) }); err != nil {
		return nil, d.fail(action, query, match, err)
	}

	var next *wm.Geometry
	_ = d.run(func() error {
		g, err := d.ctrl.State(match.App)
		next = g
		return err
	})

	d.hist.Append(history.Record{
		ID:   uuid.NewString(),
		Ts:   time.Now().UTC(),
		Kind: action,
		App:  match.App.Name,
		PID:  match.App.PID,
		Prev: prev,
		Next: next,
	})

	payload := event.WindowPayload{
		App:       match.App.Name,
		PID:       match.App.PID,
		MatchType: string(match.Type),
		Distance:  match.Distance,
	}
	if next != nil {
		payload.X = next.X
		payload.Y = next.Y
		payload.Width = next.Width
		payload.Height = next.Height
		payload.Display = next.Display
	}
	d.bus.Publish(kind, payload)
	d.logger.Info(action, zap.String("app", match.App.Name), zap.String("match", string(match.Type)))
	return &Result{Match: *match, Geometry: next}, nil
}

// resolveTarget resolves query against the current snapshot and publishes
// a failure event when nothing matches.
func (d *Dispatcher) resolveTarget(action, query string) (*resolve.MatchResult, error) {
	match := resolve.Find(query, d.lister.Apps(), d.fuzzyThreshold)
	if match == nil {
		err := &AppNotFoundError{Query: query}
		d.publishFailure(action, query, err)
		d.logger.Warn("no match", zap.String("action", action), zap.String("query", query))
		return nil, err
	}
	return match, nil
}

// run executes call with the configured timeout. The controller call
// itself cannot be cancelled; on timeout its goroutine is abandoned and
// its eventual result discarded.
func (d *Dispatcher) run(call func() error) error {
	done := make(chan error, 1)
	go func() { done <- call() }()

	select {
	case err := <-done:
		return err
	case <-time.After(d.timeout):
		return ErrTimeout
	}
}

// fail wraps a controller error and publishes the failure event.
func (d *Dispatcher) fail(action, query string, match *resolve.MatchResult, cause error) error {
	err := &ActionError{Action: action, App: match.App.Name, Cause: cause}
	d.publishFailure(action, query, err)
	d.logger.Warn("action failed",
		zap.String("action", action),
		zap.String("app", match.App.Name),
		zap.Error(cause))
	return err
}

func (d *Dispatcher) publishFailure(action, query string, err error) {
	d.bus.Publish(event.KindActionFailed, event.FailurePayload{
		Action: action,
		Query:  query,
		Code:   failureCode(err),
		Error:  err.Error(),
	})
}

// captureFocus records the currently focused application, when known, so
// a focus action can be undone.
func (d *Dispatcher) captureFocus() *history.FocusTarget {
	app, err := d.ctrl.ActiveApp()
	if err != nil || app == nil {
		return nil
	}
	return &history.FocusTarget{App: app.Name, PID: app.PID}
}

// applyUndo reverses rec. Focus restores the previously focused window
// when one was recorded; geometry actions restore the prior geometry.
func (d *Dispatcher) applyUndo(rec *history.Record) error {
	if rec.Kind == ActionFocus {
		if rec.PrevFocus == nil {
			return nil
		}
		return d.run(func() error {
			return d.ctrl.Focus(resolve.AppInfo{Name: rec.PrevFocus.App, PID: rec.PrevFocus.PID})
		})
	}
	return d.restoreGeometry(rec, rec.Prev)
}

// applyRedo replays rec.
func (d *Dispatcher) applyRedo(rec *history.Record) error {
	if rec.Kind == ActionFocus {
		return d.run(func() error {
			return d.ctrl.Focus(resolve.AppInfo{Name: rec.App, PID: rec.PID})
		})
	}
	return d.restoreGeometry(rec, rec.Next)
}

// restoreGeometry moves and resizes the record's window to g.
func (d *Dispatcher) restoreGeometry(rec *history.Record, g *wm.Geometry) error {
	if g == nil {
		return nil
	}
	app := resolve.AppInfo{Name: rec.App, PID: rec.PID}
	return d.run(func() error {
		if err := d.ctrl.Move(app, g.X, g.Y); err != nil {
			return err
		}
		return d.ctrl.Resize(app, g.Width, g.Height)
	})
}

// failureCode maps an error to the wire failure code. The same code goes
// out on both channels: the direct reply and the broadcast failure event.
func failureCode(err error) string {
	var notFound *AppNotFoundError
	switch {
	case errors.As(err, &notFound):
		return "app_not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "action_failed"
	}
}
