package common

import (
	"strings"
)

// ParseXPropString parses xprop string output like: WM_NAME(STRING) = "title"
func ParseXPropString(output string) string {
	parts := strings.SplitN(output, "=", 2)
	if len(parts) != 2 {
		return ""
	}
	value := strings.TrimSpace(parts[1])
	return strings.TrimSuffix(strings.TrimPrefix(value, "\""), "\"")
}

// ParseWMClass extracts the class name (the last entry) from xprop's
// WM_CLASS output: WM_CLASS(STRING) = "navigator", "firefox"
func ParseWMClass(output string) string {
	parts := strings.SplitN(output, "=", 2)
	if len(parts) != 2 {
		return ""
	}
	classes := strings.Split(parts[1], ",")
	return strings.Trim(classes[len(classes)-1], "\" \n")
}

// ParseActiveWindow extracts the window id from xprop's root
// _NET_ACTIVE_WINDOW output. It returns "" when no window has focus.
func ParseActiveWindow(output string) string {
	idx := strings.Index(output, "# ")
	if idx == -1 {
		return ""
	}
	id := strings.TrimSpace(output[idx+2:])
	if fields := strings.Fields(id); len(fields) > 0 {
		id = strings.TrimSuffix(fields[0], ",")
	}
	if id == "" || id == "0x0" {
		return ""
	}
	return id
}
