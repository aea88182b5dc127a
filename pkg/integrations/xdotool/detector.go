package xdotool

import (
	"os"

	"github.com/shotwatch/shotwatch/pkg/integrations/common"
	"github.com/shotwatch/shotwatch/pkg/window"
)

// Strategy is the configuration name of this detector.
const Strategy = "xdotool"

// Detector implements window.Detector for X11 using the xdotool and xprop
// command line tools.
type Detector struct {
	cmd *common.Command
}

// NewDetector creates a new xdotool detector
func NewDetector() *Detector {
	return &Detector{cmd: common.NewCommand(Strategy)}
}

// IsAvailable checks if xdotool is installed and an X display is set
func (d *Detector) IsAvailable() bool {
	return os.Getenv("DISPLAY") != "" && common.CommandExists("xdotool")
}

// GetDisplayServer returns "x11"
func (d *Detector) GetDisplayServer() string {
	return "x11"
}

// Strategy returns "xdotool"
func (d *Detector) Strategy() string {
	return Strategy
}

// GetFocusedWindow returns information about the currently focused window.
// Only the window id and title are required; WM_CLASS and the process name
// are best effort.
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	windowID, err := d.cmd.Output("xdotool", "getactivewindow")
	if err != nil {
		return nil, err
	}
	if windowID == "" {
		return nil, window.NewTransient(Strategy, window.ErrNoActiveWindow)
	}

	title, err := d.cmd.Output("xdotool", "getwindowname", windowID)
	if err != nil {
		return nil, err
	}

	// WM_CLASS works for Flatpak apps, where the PID is sandboxed.
	appName := ""
	if out, err := d.cmd.Output("xprop", "-id", windowID, "WM_CLASS"); err == nil {
		appName = common.ParseWMClass(out)
	}

	processName := ""
	if pid, err := d.cmd.Output("xdotool", "getwindowpid", windowID); err == nil && pid != "" {
		if comm, err := d.cmd.Output("ps", "-p", pid, "-o", "comm="); err == nil {
			processName = comm
		}
	}
	if appName == "" {
		appName = processName
	}
	if appName == "" {
		appName = "unknown"
	}

	return &window.WindowInfo{
		AppName:       appName,
		WindowTitle:   title,
		ProcessName:   processName,
		DisplayServer: "x11",
	}, nil
}

// Close is a no-op; the detector holds no resources.
func (d *Detector) Close() error {
	return nil
}
