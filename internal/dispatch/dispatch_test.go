package dispatch

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/1broseidon/sashd/internal/event"
	"github.com/1broseidon/sashd/internal/history"
	"github.com/1broseidon/sashd/internal/resolve"
	"github.com/1broseidon/sashd/internal/wm"
)

// fakeController records calls and serves canned geometry.
type fakeController struct {
	geoms    map[string]*wm.Geometry
	active   *resolve.AppInfo
	failErr  error
	stateErr error
	block    time.Duration

	calls []string
}

func newFakeController() *fakeController {
	return &fakeController{geoms: make(map[string]*wm.Geometry)}
}

func (f *fakeController) call(name string) error {
	f.calls = append(f.calls, name)
	if f.block > 0 {
		time.Sleep(f.block)
	}
	return f.failErr
}

func (f *fakeController) Focus(app resolve.AppInfo) error {
	return f.call("focus " + app.Name)
}

func (f *fakeController) Move(app resolve.AppInfo, x, y int) error {
	if err := f.call(fmt.Sprintf("move %s %d,%d", app.Name, x, y)); err != nil {
		return err
	}
	g := f.geom(app.Name)
	g.X, g.Y = x, y
	return nil
}

func (f *fakeController) Resize(app resolve.AppInfo, width, height int) error {
	if err := f.call(fmt.Sprintf("resize %s %dx%d", app.Name, width, height)); err != nil {
		return err
	}
	g := f.geom(app.Name)
	g.Width, g.Height = width, height
	return nil
}

func (f *fakeController) Maximize(app resolve.AppInfo) error {
	return f.call("maximize " + app.Name)
}

func (f *fakeController) MoveDisplay(app resolve.AppInfo, target string) error {
	if err := f.call("move_display " + app.Name + " " + target); err != nil {
		return err
	}
	f.geom(app.Name).Display = target
	return nil
}

func (f *fakeController) State(app resolve.AppInfo) (*wm.Geometry, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	g := *f.geom(app.Name)
	return &g, nil
}

func (f *fakeController) ActiveApp() (*resolve.AppInfo, error) {
	return f.active, nil
}

func (f *fakeController) geom(name string) *wm.Geometry {
	if g, ok := f.geoms[name]; ok {
		return g
	}
	g := &wm.Geometry{X: 0, Y: 0, Width: 800, Height: 600}
	f.geoms[name] = g
	return g
}

type fakeLister struct {
	apps []resolve.AppInfo
}

func (l *fakeLister) Apps() []resolve.AppInfo { return l.apps }

type fixture struct {
	dispatcher *Dispatcher
	ctrl       *fakeController
	hist       *history.Store
	bus        *event.Bus
	sub        *event.Subscriber
}

func newFixture(t *testing.T, apps ...string) *fixture {
	t.Helper()

	ctrl := newFakeController()
	lister := &fakeLister{}
	for i, name := range apps {
		lister.apps = append(lister.apps, resolve.AppInfo{Name: name, PID: int32(1000 + i)})
	}

	hist, err := history.New(history.Options{
		Path:       filepath.Join(t.TempDir(), "history.json"),
		Limit:      50,
		FlushDelay: time.Hour,
		Enabled:    true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	bus := event.NewBus(32, 8, zap.NewNop())
	sub := bus.Register(nil)
	t.Cleanup(func() { bus.Unregister(sub.ID()) })

	return &fixture{
		dispatcher: New(Options{
			Controller:     ctrl,
			Lister:         lister,
			History:        hist,
			Bus:            bus,
			FuzzyThreshold: 2,
			Timeout:        time.Second,
			Logger:         zap.NewNop(),
		}),
		ctrl: ctrl,
		hist: hist,
		bus:  bus,
		sub:  sub,
	}
}

func (f *fixture) nextEvent(t *testing.T) event.Event {
	t.Helper()
	select {
	case ev := <-f.sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return event.Event{}
	}
}

func TestFocusSuccess(t *testing.T) {
	f := newFixture(t, "Slack", "Firefox")
	f.ctrl.active = &resolve.AppInfo{Name: "Firefox", PID: 1001}

	result, err := f.dispatcher.Focus("slack")
	require.NoError(t, err)
	assert.Equal(t, "Slack", result.Match.App.Name)
	assert.Equal(t, resolve.MatchExact, result.Match.Type)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindAppFocused, ev.Kind)
	payload := ev.Data.(event.AppPayload)
	assert.Equal(t, "Slack", payload.App)
	assert.Equal(t, "exact", payload.MatchType)

	// Previous focus is captured for undo.
	records, _ := f.hist.List()
	require.Len(t, records, 1)
	assert.Equal(t, ActionFocus, records[0].Kind)
	require.NotNil(t, records[0].PrevFocus)
	assert.Equal(t, "Firefox", records[0].PrevFocus.App)
	assert.NotEmpty(t, records[0].ID)
}

func TestFocusFuzzyMatchDiagnostics(t *testing.T) {
	f := newFixture(t, "Slack")

	result, err := f.dispatcher.Focus("Slak")
	require.NoError(t, err)
	assert.Equal(t, resolve.MatchFuzzy, result.Match.Type)
	assert.Equal(t, 1, result.Match.Distance)

	ev := f.nextEvent(t)
	payload := ev.Data.(event.AppPayload)
	assert.Equal(t, "fuzzy", payload.MatchType)
	assert.Equal(t, 1, payload.Distance)
}

func TestUnknownAppPublishesFailureAndSkipsHistory(t *testing.T) {
	f := newFixture(t, "Slack")

	_, err := f.dispatcher.Focus("Zzzz999")
	require.Error(t, err)

	var notFound *AppNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Zzzz999", notFound.Query)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindActionFailed, ev.Kind)
	payload := ev.Data.(event.FailurePayload)
	assert.Equal(t, "app_not_found", payload.Code)
	assert.Equal(t, "Zzzz999", payload.Query)

	// Failed actions never consume undo depth.
	undo, _ := f.hist.Depths()
	assert.Equal(t, 0, undo)
	assert.Empty(t, f.ctrl.calls)
}

func TestControllerFailurePublishesFailureAndSkipsHistory(t *testing.T) {
	f := newFixture(t, "Slack")
	f.ctrl.failErr = errors.New("window vanished")

	_, err := f.dispatcher.Move("Slack", 10, 20)
	require.Error(t, err)

	var action *ActionError
	require.ErrorAs(t, err, &action)
	assert.Equal(t, ActionMove, action.Action)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindActionFailed, ev.Kind)
	assert.Equal(t, "action_failed", ev.Data.(event.FailurePayload).Code)

	undo, _ := f.hist.Depths()
	assert.Equal(t, 0, undo)
}

func TestMoveRecordsPrevAndNextGeometry(t *testing.T) {
	f := newFixture(t, "Slack")

	result, err := f.dispatcher.Move("Slack", 50, 60)
	require.NoError(t, err)
	require.NotNil(t, result.Geometry)
	assert.Equal(t, 50, result.Geometry.X)
	assert.Equal(t, 60, result.Geometry.Y)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindWindowMoved, ev.Kind)
	payload := ev.Data.(event.WindowPayload)
	assert.Equal(t, 50, payload.X)
	assert.Equal(t, 60, payload.Y)

	records, _ := f.hist.List()
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Prev)
	require.NotNil(t, records[0].Next)
	assert.Equal(t, 0, records[0].Prev.X)
	assert.Equal(t, 50, records[0].Next.X)
}

func TestResizePublishesResizedEvent(t *testing.T) {
	f := newFixture(t, "Slack")

	result, err := f.dispatcher.Resize("Slack", 1024, 768)
	require.NoError(t, err)
	assert.Equal(t, 1024, result.Geometry.Width)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindWindowResized, ev.Kind)
}

func TestMoveDisplayPublishesEvent(t *testing.T) {
	f := newFixture(t, "Slack")

	_, err := f.dispatcher.MoveDisplay("Slack", "HDMI-1")
	require.NoError(t, err)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindWindowDisplayMoved, ev.Kind)
	assert.Equal(t, "HDMI-1", ev.Data.(event.WindowPayload).Display)
}

func TestStateIsReadOnly(t *testing.T) {
	f := newFixture(t, "Slack")

	result, err := f.dispatcher.State("Slack")
	require.NoError(t, err)
	require.NotNil(t, result.Geometry)
	assert.Equal(t, 800, result.Geometry.Width)

	// No history record, no event.
	undo, _ := f.hist.Depths()
	assert.Equal(t, 0, undo)
	select {
	case ev := <-f.sub.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
}

func TestStateFailurePublishesFailureEvent(t *testing.T) {
	f := newFixture(t, "Slack")
	f.ctrl.stateErr = errors.New("window vanished")

	_, err := f.dispatcher.State("Slack")
	require.Error(t, err)

	var action *ActionError
	require.ErrorAs(t, err, &action)
	assert.Equal(t, "get_state", action.Action)

	// The failure is dual-channel like every other execution failure.
	ev := f.nextEvent(t)
	assert.Equal(t, event.KindActionFailed, ev.Kind)
	payload := ev.Data.(event.FailurePayload)
	assert.Equal(t, "get_state", payload.Action)
	assert.Equal(t, "action_failed", payload.Code)

	undo, _ := f.hist.Depths()
	assert.Equal(t, 0, undo)
}

func TestUndoRestoresPreviousGeometry(t *testing.T) {
	f := newFixture(t, "Slack")

	_, err := f.dispatcher.Move("Slack", 50, 60)
	require.NoError(t, err)
	f.nextEvent(t) // window.moved

	rec, err := f.dispatcher.Undo()
	require.NoError(t, err)
	assert.Equal(t, ActionMove, rec.Kind)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindHistoryUndone, ev.Kind)
	payload := ev.Data.(event.HistoryPayload)
	assert.Equal(t, ActionMove, payload.Action)
	assert.Equal(t, "Slack", payload.App)

	// The controller was driven back to the prior geometry.
	g := f.ctrl.geoms["Slack"]
	assert.Equal(t, 0, g.X)
	assert.Equal(t, 0, g.Y)
}

func TestRedoReappliesGeometry(t *testing.T) {
	f := newFixture(t, "Slack")

	_, err := f.dispatcher.Move("Slack", 50, 60)
	require.NoError(t, err)
	f.nextEvent(t)

	_, err = f.dispatcher.Undo()
	require.NoError(t, err)
	f.nextEvent(t)

	rec, err := f.dispatcher.Redo()
	require.NoError(t, err)
	assert.Equal(t, ActionMove, rec.Kind)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindHistoryRedone, ev.Kind)

	g := f.ctrl.geoms["Slack"]
	assert.Equal(t, 50, g.X)
	assert.Equal(t, 60, g.Y)
}

func TestUndoFocusRestoresPreviousFocus(t *testing.T) {
	f := newFixture(t, "Slack", "Firefox")
	f.ctrl.active = &resolve.AppInfo{Name: "Firefox", PID: 1001}

	_, err := f.dispatcher.Focus("Slack")
	require.NoError(t, err)
	f.nextEvent(t)

	_, err = f.dispatcher.Undo()
	require.NoError(t, err)

	assert.Contains(t, f.ctrl.calls, "focus Firefox")
}

func TestUndoEmptyHistory(t *testing.T) {
	f := newFixture(t, "Slack")

	_, err := f.dispatcher.Undo()
	assert.ErrorIs(t, err, history.ErrEmpty)
}

func TestUndoDisabledHistory(t *testing.T) {
	ctrl := newFakeController()
	hist, err := history.New(history.Options{
		Path:    filepath.Join(t.TempDir(), "history.json"),
		Limit:   50,
		Enabled: false,
	})
	require.NoError(t, err)

	d := New(Options{
		Controller: ctrl,
		Lister:     &fakeLister{},
		History:    hist,
		Bus:        event.NewBus(8, 4, zap.NewNop()),
		Timeout:    time.Second,
	})

	_, err = d.Undo()
	assert.ErrorIs(t, err, history.ErrDisabled)
}

func TestActionTimeout(t *testing.T) {
	f := newFixture(t, "Slack")
	f.ctrl.block = 500 * time.Millisecond
	f.dispatcher.timeout = 20 * time.Millisecond

	_, err := f.dispatcher.Focus("Slack")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	ev := f.nextEvent(t)
	assert.Equal(t, event.KindActionFailed, ev.Kind)
	// The event carries the same code the direct reply maps to.
	assert.Equal(t, "timeout", ev.Data.(event.FailurePayload).Code)

	undo, _ := f.hist.Depths()
	assert.Equal(t, 0, undo)
}
