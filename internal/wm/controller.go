// Package wm defines the window-control capability consumed by the
// dispatcher and its X11 implementation.
package wm

import "github.com/1broseidon/sashd/internal/resolve"

// Geometry is a window's position and size in root coordinates.
type Geometry struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Display string `json:"display,omitempty"` // output name, when known
}

// Controller performs window actions for a resolved application. All
// calls are synchronous and fallible; the dispatcher wraps them in a
// bounded timeout.
type Controller interface {
	// Focus activates and raises the application's window.
	Focus(app resolve.AppInfo) error
	// Move repositions the window, keeping its size.
	Move(app resolve.AppInfo, x, y int) error
	// Resize changes the window size, keeping its position.
	Resize(app resolve.AppInfo, width, height int) error
	// Maximize fills the window's current display work area.
	Maximize(app resolve.AppInfo) error
	// MoveDisplay places the window on the named display, preserving its
	// relative position within the display.
	MoveDisplay(app resolve.AppInfo, target string) error
	// State returns the window's current geometry.
	State(app resolve.AppInfo) (*Geometry, error)
	// ActiveApp returns the application owning the focused window, or nil
	// when none can be determined.
	ActiveApp() (*resolve.AppInfo, error)
}

// Lister supplies the frozen application snapshot used for resolution.
type Lister interface {
	Apps() []resolve.AppInfo
}
