package screenshot

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
)

// Backends lists the capture backends accepted by New.
var Backends = []string{"auto", "x11", "grim", "screencapture", "gnome-screenshot"}

// New returns the capturer for backend. "auto" picks one from the session
// environment.
func New(backend string) (Capturer, error) {
	switch backend {
	case "", "auto":
		return New(detectBackend())
	case "x11":
		return NewX11Capturer()
	case "grim":
		return NewCommandCapturer(backend, "grim", PathPlaceholder)
	case "screencapture":
		return NewCommandCapturer(backend, "screencapture", "-x", PathPlaceholder)
	case "gnome-screenshot":
		return NewCommandCapturer(backend, "gnome-screenshot", "-f", PathPlaceholder)
	default:
		return nil, errors.Errorf("unknown capture backend %q", backend)
	}
}

func detectBackend() string {
	if runtime.GOOS == "darwin" {
		return "screencapture"
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" || os.Getenv("XDG_SESSION_TYPE") == "wayland" {
		return "grim"
	}
	return "x11"
}

// IsBackend reports whether name is accepted by New.
func IsBackend(name string) bool {
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}
