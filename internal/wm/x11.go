package wm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/sashd/internal/resolve"
)

// Display is one active output head.
type Display struct {
	ID     int
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

// X11 implements Controller against an X server via EWMH.
type X11 struct {
	xu   *xgbutil.XUtil
	root xproto.Window
}

// NewX11 connects to the X server named by $DISPLAY.
func NewX11() (*X11, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return &X11{xu: xu, root: xu.RootWin()}, nil
}

// Close disconnects from the X server.
func (c *X11) Close() {
	c.xu.Conn().Close()
}

// windowFor finds the application's normal top-level window by _NET_WM_PID.
func (c *X11) windowFor(app resolve.AppInfo) (xproto.Window, error) {
	clients, err := ewmh.ClientListGet(c.xu)
	if err != nil {
		return 0, fmt.Errorf("failed to get client list: %w", err)
	}

	for _, win := range clients {
		pid, err := ewmh.WmPidGet(c.xu, win)
		if err != nil || int32(pid) != app.PID {
			continue
		}
		if !c.isNormalWindow(win) {
			continue
		}
		return win, nil
	}
	return 0, fmt.Errorf("no window found for %q (pid %d)", app.Name, app.PID)
}

// isNormalWindow rejects docks, desktops, splashes and notifications.
func (c *X11) isNormalWindow(win xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.xu, win)
	if err != nil {
		return true
	}
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_NORMAL":
			return true
		case "_NET_WM_WINDOW_TYPE_DESKTOP",
			"_NET_WM_WINDOW_TYPE_DOCK",
			"_NET_WM_WINDOW_TYPE_SPLASH",
			"_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return false
		}
	}
	return len(types) == 0
}

// geometry returns the window's size and root-relative position. Client
// windows are usually reparented by the WM, so the position comes from a
// coordinate translation rather than the raw geometry reply.
func (c *X11) geometry(win xproto.Window) (*Geometry, error) {
	geom, err := xproto.GetGeometry(c.xu.Conn(), xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}

	translate, err := xproto.TranslateCoordinates(c.xu.Conn(), win, c.root, 0, 0).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to translate window coordinates: %w", err)
	}

	g := &Geometry{
		X:      int(translate.DstX),
		Y:      int(translate.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}
	if mon := c.displayAt(g.X+g.Width/2, g.Y+g.Height/2); mon != nil {
		g.Display = mon.Name
	}
	return g, nil
}

// Focus activates and raises the window using _NET_ACTIVE_WINDOW. The
// client message is built manually because the xgbutil ewmh helper panics
// on this library version (uint vs int type assertion).
func (c *X11) Focus(app resolve.AppInfo) error {
	win, err := c.windowFor(app)
	if err != nil {
		return err
	}

	atomReply, err := xproto.InternAtom(c.xu.Conn(), false,
		uint16(len("_NET_ACTIVE_WINDOW")), "_NET_ACTIVE_WINDOW").Reply()
	if err != nil {
		return fmt.Errorf("failed to intern _NET_ACTIVE_WINDOW: %w", err)
	}

	const sourceIndication = 2 // pager/direct action
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   atomReply.Atom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{sourceIndication, 0, 0, 0, 0}),
	}

	return xproto.SendEventChecked(
		c.xu.Conn(),
		false,
		c.root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

// Move repositions the window, keeping its current size.
func (c *X11) Move(app resolve.AppInfo, x, y int) error {
	win, err := c.windowFor(app)
	if err != nil {
		return err
	}
	cur, err := c.geometry(win)
	if err != nil {
		return err
	}
	return c.moveResize(win, x, y, cur.Width, cur.Height)
}

// Resize changes the window size, keeping its current position.
func (c *X11) Resize(app resolve.AppInfo, width, height int) error {
	win, err := c.windowFor(app)
	if err != nil {
		return err
	}
	cur, err := c.geometry(win)
	if err != nil {
		return err
	}
	return c.moveResize(win, cur.X, cur.Y, width, height)
}

// Maximize adds both EWMH maximized states.
func (c *X11) Maximize(app resolve.AppInfo) error {
	win, err := c.windowFor(app)
	if err != nil {
		return err
	}
	if err := ewmh.WmStateReq(c.xu, win, 1, "_NET_WM_STATE_MAXIMIZED_HORZ"); err != nil {
		return fmt.Errorf("failed to maximize horizontally: %w", err)
	}
	if err := ewmh.WmStateReq(c.xu, win, 1, "_NET_WM_STATE_MAXIMIZED_VERT"); err != nil {
		return fmt.Errorf("failed to maximize vertically: %w", err)
	}
	return nil
}

// MoveDisplay places the window on the named display (output name or
// index), preserving its offset relative to the source display.
func (c *X11) MoveDisplay(app resolve.AppInfo, target string) error {
	win, err := c.windowFor(app)
	if err != nil {
		return err
	}
	cur, err := c.geometry(win)
	if err != nil {
		return err
	}

	displays, err := c.Displays()
	if err != nil {
		return err
	}
	dst := findDisplay(displays, target)
	if dst == nil {
		return fmt.Errorf("unknown display %q", target)
	}

	offsetX, offsetY := 0, 0
	if src := c.displayAt(cur.X+cur.Width/2, cur.Y+cur.Height/2); src != nil {
		offsetX = cur.X - src.X
		offsetY = cur.Y - src.Y
	}

	x := dst.X + offsetX
	y := dst.Y + offsetY
	// Keep the window inside the destination.
	if x+cur.Width > dst.X+dst.Width {
		x = dst.X + dst.Width - cur.Width
	}
	if y+cur.Height > dst.Y+dst.Height {
		y = dst.Y + dst.Height - cur.Height
	}
	if x < dst.X {
		x = dst.X
	}
	if y < dst.Y {
		y = dst.Y
	}

	return c.moveResize(win, x, y, cur.Width, cur.Height)
}

// State returns the window's current geometry.
func (c *X11) State(app resolve.AppInfo) (*Geometry, error) {
	win, err := c.windowFor(app)
	if err != nil {
		return nil, err
	}
	return c.geometry(win)
}

// ActiveApp returns the application owning the focused window.
func (c *X11) ActiveApp() (*resolve.AppInfo, error) {
	win, err := ewmh.ActiveWindowGet(c.xu)
	if err != nil || win == 0 {
		return nil, nil
	}
	pid, err := ewmh.WmPidGet(c.xu, win)
	if err != nil || pid == 0 {
		return nil, nil
	}
	app := c.appForPID(int32(pid), win)
	return &app, nil
}

// moveResize unmaximizes first (a maximized window ignores geometry
// requests), then uses EWMH moveresize with a direct fallback.
func (c *X11) moveResize(win xproto.Window, x, y, width, height int) error {
	c.unmaximize(win)

	if err := ewmh.MoveresizeWindow(c.xu, win, x, y, width, height); err != nil {
		xwindow.New(c.xu, win).MoveResize(x, y, width, height)
	}
	return nil
}

// unmaximize removes maximized states when present.
func (c *X11) unmaximize(win xproto.Window) {
	states, err := ewmh.WmStateGet(c.xu, win)
	if err != nil {
		return
	}
	for _, state := range states {
		if state == "_NET_WM_STATE_MAXIMIZED_HORZ" || state == "_NET_WM_STATE_MAXIMIZED_VERT" {
			ewmh.WmStateReq(c.xu, win, 0, state)
		}
	}
}

// Displays lists active output heads via XRandR.
func (c *X11) Displays() ([]Display, error) {
	if err := randr.Init(c.xu.Conn()); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	resources, err := randr.GetScreenResources(c.xu.Conn(), c.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var displays []Display
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.xu.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		name := fmt.Sprintf("Display%d", i)
		outputInfo, err := randr.GetOutputInfo(c.xu.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			name = string(outputInfo.Name)
		}

		displays = append(displays, Display{
			ID:     i,
			Name:   name,
			X:      int(crtcInfo.X),
			Y:      int(crtcInfo.Y),
			Width:  int(crtcInfo.Width),
			Height: int(crtcInfo.Height),
		})
	}
	return displays, nil
}

// displayAt returns the display containing the point, or nil.
func (c *X11) displayAt(x, y int) *Display {
	displays, err := c.Displays()
	if err != nil {
		return nil
	}
	for i := range displays {
		d := &displays[i]
		if x >= d.X && x < d.X+d.Width && y >= d.Y && y < d.Y+d.Height {
			return d
		}
	}
	return nil
}

// findDisplay matches a target by output name (case-insensitive) or index.
func findDisplay(displays []Display, target string) *Display {
	for i := range displays {
		if strings.EqualFold(displays[i].Name, target) {
			return &displays[i]
		}
	}
	if idx, err := strconv.Atoi(target); err == nil {
		for i := range displays {
			if displays[i].ID == idx {
				return &displays[i]
			}
		}
	}
	return nil
}
