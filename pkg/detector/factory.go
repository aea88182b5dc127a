package detector

import (
	"os"
	"runtime"

	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/pkg/integrations/osascript"
	"github.com/shotwatch/shotwatch/pkg/integrations/wayland"
	"github.com/shotwatch/shotwatch/pkg/integrations/x11"
	"github.com/shotwatch/shotwatch/pkg/integrations/xdotool"
	"github.com/shotwatch/shotwatch/pkg/window"
)

// Auto selects a strategy from the platform and session environment.
const Auto = "auto"

// New creates the window detector for strategy. The choice is made once;
// a strategy that cannot start is an error, never a silent fallback.
func New(strategy string) (window.Detector, error) {
	if strategy == "" || strategy == Auto {
		resolved, err := Resolve(runtime.GOOS, os.Getenv)
		if err != nil {
			return nil, err
		}
		strategy = resolved
	}

	d, err := create(strategy)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize %s window detector", strategy)
	}
	return d, nil
}

func create(strategy string) (window.Detector, error) {
	switch strategy {
	case x11.Strategy:
		d, err := x11.NewDetector()
		if err != nil {
			return nil, err
		}
		return d, nil
	case xdotool.Strategy:
		d := xdotool.NewDetector()
		if !d.IsAvailable() {
			return nil, errors.New("xdotool and a DISPLAY are required")
		}
		return d, nil
	case wayland.Strategy:
		d, err := wayland.NewDetector()
		if err != nil {
			return nil, err
		}
		return d, nil
	case osascript.AppleScript, osascript.JXA:
		d, err := osascript.NewDetector(strategy)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, errors.Errorf("unknown strategy %q", strategy)
	}
}

// Resolve picks the strategy "auto" stands for.
func Resolve(goos string, getenv func(string) string) (string, error) {
	switch goos {
	case "darwin":
		return osascript.AppleScript, nil
	case "linux", "freebsd", "openbsd", "netbsd":
	default:
		return "", errors.Errorf("window sampling is not supported on %s", goos)
	}

	switch DetectDisplayServer(getenv) {
	case "wayland":
		return wayland.Strategy, nil
	case "x11":
		return x11.Strategy, nil
	default:
		return "", errors.New("DISPLAY environment variable not set")
	}
}

// DetectDisplayServer returns "wayland", "x11" or "unknown".
func DetectDisplayServer(getenv func(string) string) string {
	if getenv("XDG_SESSION_TYPE") == "wayland" || getenv("WAYLAND_DISPLAY") != "" {
		return "wayland"
	}
	if getenv("XDG_SESSION_TYPE") == "x11" || getenv("DISPLAY") != "" {
		return "x11"
	}
	return "unknown"
}
