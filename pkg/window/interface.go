package window

// WindowInfo represents information about the currently focused window
type WindowInfo struct {
	AppName       string
	WindowTitle   string
	ProcessName   string
	DisplayServer string // "x11", "wayland" or "quartz"
}

// Detector is the interface that all window sampling strategies must satisfy.
// A strategy is chosen once at startup; callers never branch on which one is in use.
type Detector interface {
	// GetFocusedWindow samples the currently focused window. Errors are
	// *SampleError values; anything else is treated as Transient.
	GetFocusedWindow() (*WindowInfo, error)

	// IsAvailable checks if this detector can run on the current system
	IsAvailable() bool

	// GetDisplayServer returns the display server type
	GetDisplayServer() string

	// Strategy returns the configuration name of the strategy
	Strategy() string

	// Close cleans up any resources used by the detector
	Close() error
}
