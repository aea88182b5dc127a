package wayland

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/pkg/integrations/common"
	"github.com/shotwatch/shotwatch/pkg/window"
)

// Strategy is the configuration name of this detector.
const Strategy = "wayland"

// Supported compositors.
const (
	Sway     = "sway"
	Hyprland = "hyprland"
	Gnome    = "gnome"
)

var compositorTools = map[string]string{
	Sway:     "swaymsg",
	Hyprland: "hyprctl",
	Gnome:    "gdbus",
}

// gnomeScript runs inside gnome-shell and returns the focused window as JSON.
const gnomeScript = `
let fw = global.get_window_actors()
	.map(a => a.meta_window)
	.find(w => w && w.has_focus());
if (!fw) {
	fw = global.display.get_focus_window();
}
fw ? JSON.stringify({
	wm_class: fw.get_wm_class() || '',
	title: fw.get_title() || '',
	pid: fw.get_pid() || 0
}) : 'null';
`

// Detector implements window.Detector for Wayland compositors that expose
// the focused window over IPC.
type Detector struct {
	compositor string
	cmd        *common.Command
	getenv     func(string) string
}

// NewDetector detects the running compositor. An unsupported compositor
// or a missing IPC tool is an error.
func NewDetector() (*Detector, error) {
	d := &Detector{cmd: common.NewCommand(Strategy), getenv: os.Getenv}

	compositor, err := d.detectCompositor()
	if err != nil {
		return nil, err
	}
	if tool := compositorTools[compositor]; !common.CommandExists(tool) {
		return nil, errors.Errorf("%s is required to sample windows on %s", tool, compositor)
	}
	d.compositor = compositor
	return d, nil
}

// detectCompositor checks the compositors' own environment variables
// first and falls back to looking for their processes.
func (d *Detector) detectCompositor() (string, error) {
	switch {
	case d.getenv("SWAYSOCK") != "":
		return Sway, nil
	case d.getenv("HYPRLAND_INSTANCE_SIGNATURE") != "":
		return Hyprland, nil
	}

	desktop := strings.ToLower(d.getenv("XDG_CURRENT_DESKTOP"))
	switch {
	case strings.Contains(desktop, "gnome"), strings.Contains(desktop, "ubuntu"):
		return Gnome, nil
	case strings.Contains(desktop, "sway"):
		return Sway, nil
	case strings.Contains(desktop, "hyprland"):
		return Hyprland, nil
	}

	processes := []struct{ process, compositor string }{
		{"sway", Sway},
		{"Hyprland", Hyprland},
		{"gnome-shell", Gnome},
	}
	for _, p := range processes {
		if _, err := d.cmd.Output("pgrep", "-x", p.process); err == nil {
			return p.compositor, nil
		}
	}

	if desktop == "" {
		desktop = "unknown"
	}
	return "", errors.Errorf("unsupported Wayland compositor %q", desktop)
}

// Compositor returns the detected compositor
func (d *Detector) Compositor() string {
	return d.compositor
}

// IsAvailable checks if the compositor's IPC tool is installed
func (d *Detector) IsAvailable() bool {
	return common.CommandExists(compositorTools[d.compositor])
}

// GetDisplayServer returns "wayland"
func (d *Detector) GetDisplayServer() string {
	return "wayland"
}

// Strategy returns "wayland"
func (d *Detector) Strategy() string {
	return Strategy
}

// GetFocusedWindow returns information about the currently focused window
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	var (
		info *window.WindowInfo
		err  error
	)
	switch d.compositor {
	case Sway:
		info, err = d.focusedSway()
	case Hyprland:
		info, err = d.focusedHyprland()
	case Gnome:
		info, err = d.focusedGnome()
	default:
		return nil, window.NewFatal(Strategy, errors.Errorf("unsupported Wayland compositor %q", d.compositor))
	}
	if err != nil {
		return nil, err
	}
	info.DisplayServer = "wayland"
	return info, nil
}

type swayNode struct {
	Focused          bool   `json:"focused"`
	Type             string `json:"type"`
	Name             string `json:"name"`
	AppID            string `json:"app_id"`
	PID              int    `json:"pid"`
	WindowProperties struct {
		Class    string `json:"class"`
		Instance string `json:"instance"`
	} `json:"window_properties"`
	Nodes         []swayNode `json:"nodes"`
	FloatingNodes []swayNode `json:"floating_nodes"`
}

func (d *Detector) focusedSway() (*window.WindowInfo, error) {
	out, err := d.cmd.Output("swaymsg", "-t", "get_tree")
	if err != nil {
		return nil, err
	}
	return parseSwayTree(out)
}

// parseSwayTree finds the focused view in swaymsg's tree. Native Wayland
// views carry an app_id, XWayland views a window class.
func parseSwayTree(data string) (*window.WindowInfo, error) {
	var root swayNode
	if err := json.Unmarshal([]byte(data), &root); err != nil {
		return nil, window.NewTransient(Strategy, errors.Wrap(err, "failed to parse sway tree"))
	}

	node := findFocused(&root)
	if node == nil || (node.Type != "con" && node.Type != "floating_con") {
		return nil, window.NewTransient(Strategy, window.ErrNoActiveWindow)
	}

	appName := node.AppID
	if appName == "" {
		appName = node.WindowProperties.Class
	}
	if appName == "" {
		appName = "unknown"
	}
	return &window.WindowInfo{AppName: appName, WindowTitle: node.Name, ProcessName: node.AppID}, nil
}

func findFocused(node *swayNode) *swayNode {
	if node.Focused {
		return node
	}
	for _, children := range [][]swayNode{node.Nodes, node.FloatingNodes} {
		for i := range children {
			if found := findFocused(&children[i]); found != nil {
				return found
			}
		}
	}
	return nil
}

type hyprlandWindow struct {
	Class        string `json:"class"`
	InitialClass string `json:"initialClass"`
	Title        string `json:"title"`
	PID          int    `json:"pid"`
}

func (d *Detector) focusedHyprland() (*window.WindowInfo, error) {
	out, err := d.cmd.Output("hyprctl", "activewindow", "-j")
	if err != nil {
		return nil, err
	}

	info, pid, err := parseHyprlandWindow(out)
	if err != nil {
		return nil, err
	}
	info.ProcessName = d.processName(pid)
	return info, nil
}

// parseHyprlandWindow decodes `hyprctl activewindow -j`. Hyprland prints
// an empty object when nothing has focus.
func parseHyprlandWindow(data string) (*window.WindowInfo, int, error) {
	var w hyprlandWindow
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, 0, window.NewTransient(Strategy, errors.Wrap(err, "failed to parse hyprctl output"))
	}

	appName := w.Class
	if appName == "" {
		appName = w.InitialClass
	}
	if appName == "" && w.Title == "" {
		return nil, 0, window.NewTransient(Strategy, window.ErrNoActiveWindow)
	}
	if appName == "" {
		appName = "unknown"
	}
	return &window.WindowInfo{AppName: appName, WindowTitle: w.Title}, w.PID, nil
}

type gnomeWindow struct {
	WMClass string `json:"wm_class"`
	Title   string `json:"title"`
	PID     int    `json:"pid"`
}

// focusedGnome evaluates a script in gnome-shell. Recent GNOME releases
// refuse Shell.Eval outside unsafe mode; XWayland windows can then still
// be read with xprop.
func (d *Detector) focusedGnome() (*window.WindowInfo, error) {
	out, err := d.cmd.Output("gdbus", "call", "--session",
		"--dest", "org.gnome.Shell",
		"--object-path", "/org/gnome/Shell",
		"--method", "org.gnome.Shell.Eval",
		gnomeScript)
	if err != nil {
		return nil, err
	}

	info, pid, err := parseGnomeEval(out)
	if errors.Is(err, errEvalDisabled) {
		if d.getenv("DISPLAY") == "" {
			return nil, window.NewFatal(Strategy, err)
		}
		return d.focusedXWayland()
	}
	if err != nil {
		return nil, err
	}
	info.ProcessName = d.processName(pid)
	return info, nil
}

var errEvalDisabled = errors.New("org.gnome.Shell.Eval is disabled")

// parseGnomeEval decodes gdbus output such as (true, '{"title":"x"}').
func parseGnomeEval(output string) (*window.WindowInfo, int, error) {
	output = strings.TrimSpace(output)
	if !strings.HasPrefix(output, "(true,") {
		return nil, 0, errEvalDisabled
	}

	start := strings.Index(output, "'")
	end := strings.LastIndex(output, "'")
	if start == -1 || end <= start {
		return nil, 0, window.NewTransient(Strategy, errors.Errorf("unexpected gdbus output %q", output))
	}
	payload := unescapeGVariant(output[start+1 : end])
	if payload == "null" {
		return nil, 0, window.NewTransient(Strategy, window.ErrNoActiveWindow)
	}

	var w gnomeWindow
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, 0, window.NewTransient(Strategy, errors.Wrap(err, "failed to parse gnome-shell reply"))
	}
	appName := w.WMClass
	if appName == "" {
		appName = "unknown"
	}
	return &window.WindowInfo{AppName: appName, WindowTitle: w.Title}, w.PID, nil
}

func unescapeGVariant(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// focusedXWayland reads the active XWayland window with xprop.
func (d *Detector) focusedXWayland() (*window.WindowInfo, error) {
	out, err := d.cmd.Output("xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return nil, err
	}
	windowID := common.ParseActiveWindow(out)
	if windowID == "" {
		// The focused window may be a native Wayland one.
		return nil, window.NewTransient(Strategy, window.ErrNoActiveWindow)
	}

	title := ""
	if out, err := d.cmd.Output("xprop", "-id", windowID, "_NET_WM_NAME"); err == nil {
		title = common.ParseXPropString(out)
	}
	if title == "" {
		if out, err := d.cmd.Output("xprop", "-id", windowID, "WM_NAME"); err == nil {
			title = common.ParseXPropString(out)
		}
	}

	appName := "unknown"
	if out, err := d.cmd.Output("xprop", "-id", windowID, "WM_CLASS"); err == nil {
		if class := common.ParseWMClass(out); class != "" {
			appName = class
		}
	}
	return &window.WindowInfo{AppName: appName, WindowTitle: title}, nil
}

// processName retrieves the process name of pid, best effort
func (d *Detector) processName(pid int) string {
	if pid <= 0 {
		return ""
	}
	out, err := d.cmd.Output("ps", "-p", strconv.Itoa(pid), "-o", "comm=")
	if err != nil {
		return ""
	}
	return out
}

// Close is a no-op; the detector holds no resources.
func (d *Detector) Close() error {
	return nil
}
