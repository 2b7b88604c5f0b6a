// Package daemon holds the long-running pieces that tie the subsystems
// together, starting with the application watcher.
package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/sashd/internal/event"
	"github.com/1broseidon/sashd/internal/resolve"
)

// AppSource enumerates the currently running applications.
type AppSource interface {
	ListApps() ([]resolve.AppInfo, error)
}

// Watcher polls the application list on an interval, keeps the latest
// snapshot for resolution, and publishes app.launched / app.terminated
// events for the diff between consecutive snapshots. It implements
// wm.Lister.
type Watcher struct {
	source   AppSource
	bus      *event.Bus
	interval time.Duration
	logger   *zap.Logger

	mu   sync.RWMutex
	apps []resolve.AppInfo

	primeOnce sync.Once
}

// NewWatcher creates a watcher. Call Run to start polling.
func NewWatcher(source AppSource, bus *event.Bus, interval time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		source:   source,
		bus:      bus,
		interval: interval,
		logger:   logger,
	}
}

// Apps returns the most recent snapshot.
func (w *Watcher) Apps() []resolve.AppInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]resolve.AppInfo, len(w.apps))
	copy(out, w.apps)
	return out
}

// Prime takes the initial snapshot synchronously, without publishing
// launch events for already-running applications. Called before the IPC
// server starts answering so the first request never sees an empty
// snapshot. At most one prime happens; later calls are no-ops.
func (w *Watcher) Prime() {
	w.primeOnce.Do(func() { w.refresh(true) })
}

// Run polls until ctx is cancelled, priming first when the caller has
// not already done so.
func (w *Watcher) Run(ctx context.Context) {
	w.Prime()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(false)
		}
	}
}

// refresh fetches a new snapshot and publishes the diff. The initial
// snapshot is taken silently so daemon startup does not report every
// already-running application as launched.
func (w *Watcher) refresh(initial bool) {
	apps, err := w.source.ListApps()
	if err != nil {
		w.logger.Warn("failed to list applications", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.apps
	w.apps = apps
	w.mu.Unlock()

	if initial {
		w.logger.Debug("initial application snapshot", zap.Int("count", len(apps)))
		return
	}

	before := byPID(prev)
	after := byPID(apps)

	for pid, app := range after {
		if _, ok := before[pid]; !ok {
			w.bus.Publish(event.KindAppLaunched, event.AppPayload{App: app.Name, PID: app.PID})
			w.logger.Debug("app launched", zap.String("app", app.Name), zap.Int32("pid", app.PID))
		}
	}
	for pid, app := range before {
		if _, ok := after[pid]; !ok {
			w.bus.Publish(event.KindAppTerminated, event.AppPayload{App: app.Name, PID: app.PID})
			w.logger.Debug("app terminated", zap.String("app", app.Name), zap.Int32("pid", app.PID))
		}
	}
}

func byPID(apps []resolve.AppInfo) map[int32]resolve.AppInfo {
	m := make(map[int32]resolve.AppInfo, len(apps))
	for _, app := range apps {
		m[app.PID] = app
	}
	return m
}
