package osascript

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/pkg/integrations/common"
	"github.com/shotwatch/shotwatch/pkg/window"
)

// Strategies served by this detector.
const (
	AppleScript = "applescript"
	JXA         = "jxa"
)

const appleScript = `tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set winTitle to ""
	try
		tell frontApp to set winTitle to name of front window
	end try
end tell
return appName & linefeed & winTitle`

const jxaScript = `var se = Application("System Events");
var proc = se.processes.whose({frontmost: true})[0];
var title = "";
try { title = proc.windows[0].name(); } catch (e) {}
JSON.stringify({app: proc.name(), title: title || ""});`

// ErrPermissionDenied is returned when macOS refuses automation or
// accessibility access to System Events.
var ErrPermissionDenied = errors.New("automation permission denied; grant access in System Settings > Privacy & Security")

// Detector implements window.Detector on macOS by running osascript.
type Detector struct {
	strategy string
	cmd      *common.Command
}

// NewDetector creates a detector for the applescript or jxa strategy.
func NewDetector(strategy string) (*Detector, error) {
	if strategy != AppleScript && strategy != JXA {
		return nil, errors.Errorf("unknown osascript strategy %q", strategy)
	}
	if !common.CommandExists("osascript") {
		return nil, errors.New("osascript not found; the applescript and jxa strategies require macOS")
	}
	return &Detector{strategy: strategy, cmd: common.NewCommand(strategy)}, nil
}

// IsAvailable checks if osascript is installed
func (d *Detector) IsAvailable() bool {
	return common.CommandExists("osascript")
}

// GetDisplayServer returns "quartz"
func (d *Detector) GetDisplayServer() string {
	return "quartz"
}

// Strategy returns "applescript" or "jxa"
func (d *Detector) Strategy() string {
	return d.strategy
}

// GetFocusedWindow asks System Events for the frontmost application.
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	var (
		out string
		err error
	)
	if d.strategy == JXA {
		out, err = d.cmd.Output("osascript", "-l", "JavaScript", "-e", jxaScript)
	} else {
		out, err = d.cmd.Output("osascript", "-e", appleScript)
	}
	if err != nil {
		if !window.IsFatal(err) && permissionDenied(err.Error()) {
			return nil, window.NewFatal(d.strategy, errors.Wrap(ErrPermissionDenied, err.Error()))
		}
		return nil, err
	}

	var info *window.WindowInfo
	if d.strategy == JXA {
		info, err = parseJXA(out)
	} else {
		info, err = parseAppleScript(out)
	}
	if err != nil {
		return nil, window.NewTransient(d.strategy, err)
	}
	info.DisplayServer = "quartz"
	return info, nil
}

// permissionDenied matches osascript's errors for a missing automation
// (-1743) or accessibility (-1719, -25211) grant.
func permissionDenied(msg string) bool {
	for _, marker := range []string{"-1743", "-1719", "-25211", "assistive access", "Not authorized to send Apple events"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func parseAppleScript(out string) (*window.WindowInfo, error) {
	app, title, _ := strings.Cut(out, "\n")
	app = strings.TrimSpace(app)
	if app == "" {
		return nil, window.ErrNoActiveWindow
	}
	return &window.WindowInfo{AppName: app, WindowTitle: strings.TrimSpace(title), ProcessName: app}, nil
}

func parseJXA(out string) (*window.WindowInfo, error) {
	var v struct {
		App   string `json:"app"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return nil, errors.Wrap(err, "failed to parse osascript output")
	}
	if v.App == "" {
		return nil, window.ErrNoActiveWindow
	}
	return &window.WindowInfo{AppName: v.App, WindowTitle: v.Title, ProcessName: v.App}, nil
}

// Close is a no-op; the detector holds no resources.
func (d *Detector) Close() error {
	return nil
}
