package wm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/1broseidon/sashd/internal/resolve"
)

// ListApps enumerates applications owning normal top-level windows. One
// entry per process; names come from the process table with WM_CLASS as a
// fallback. Duplicate names are disambiguated with an instance suffix so
// resolution stays unambiguous.
func (c *X11) ListApps() ([]resolve.AppInfo, error) {
	clients, err := ewmh.ClientListGet(c.xu)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}

	seen := make(map[int32]bool)
	var apps []resolve.AppInfo

	for _, win := range clients {
		if !c.isNormalWindow(win) {
			continue
		}
		pid, err := ewmh.WmPidGet(c.xu, win)
		if err != nil || pid == 0 {
			continue
		}
		if seen[int32(pid)] {
			continue
		}
		seen[int32(pid)] = true
		apps = append(apps, c.appForPID(int32(pid), win))
	}

	sort.Slice(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].Name) < strings.ToLower(apps[j].Name)
	})

	disambiguate(apps)
	return apps, nil
}

// appForPID builds an AppInfo for a window's owning process.
func (c *X11) appForPID(pid int32, win xproto.Window) resolve.AppInfo {
	app := resolve.AppInfo{PID: pid}

	if class, err := icccm.WmClassGet(c.xu, win); err == nil && class != nil {
		app.Class = class.Class
	}

	if proc, err := process.NewProcess(pid); err == nil {
		if name, err := proc.Name(); err == nil && name != "" {
			app.Name = name
		}
	}
	if app.Name == "" {
		app.Name = app.Class
	}
	if app.Name == "" {
		app.Name = fmt.Sprintf("pid-%d", pid)
	}
	return app
}

// disambiguate appends " (n)" to repeated names, in slice order, so every
// snapshot name is unique.
func disambiguate(apps []resolve.AppInfo) {
	counts := make(map[string]int)
	for _, app := range apps {
		counts[app.Name]++
	}

	indices := make(map[string]int)
	for i := range apps {
		name := apps[i].Name
		if counts[name] > 1 {
			indices[name]++
			apps[i].Name = fmt.Sprintf("%s (%d)", name, indices[name])
		}
	}
}
