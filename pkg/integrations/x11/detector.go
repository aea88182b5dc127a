package x11

import (
	"encoding/binary"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/pkg/window"
)

// Strategy is the configuration name of this detector.
const Strategy = "x11"

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

// Detector implements window.Detector over a persistent connection to the
// X server.
type Detector struct {
	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
	once  sync.Once
}

// NewDetector connects to the X server named by $DISPLAY.
func NewDetector() (*Detector, error) {
	if os.Getenv("DISPLAY") == "" {
		return nil, errors.New("DISPLAY environment variable not set")
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to X server")
	}

	d := &Detector{
		conn:  conn,
		root:  xproto.Setup(conn).DefaultScreen(conn).Root,
		atoms: make(map[string]xproto.Atom, len(atomNames)),
	}
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to intern atom %s", name)
		}
		d.atoms[name] = reply.Atom
	}
	return d, nil
}

// IsAvailable reports whether the connection is open
func (d *Detector) IsAvailable() bool {
	return d.conn != nil
}

// GetDisplayServer returns "x11"
func (d *Detector) GetDisplayServer() string {
	return "x11"
}

// Strategy returns "x11"
func (d *Detector) Strategy() string {
	return Strategy
}

// GetFocusedWindow returns the focused top-level window. A broken X
// connection is Fatal; a desktop without a focused window is Transient.
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	win, err := d.activeWindow()
	if err != nil {
		return nil, err
	}

	instance, class := parseWMClass(d.property(win, d.atoms["WM_CLASS"], xproto.AtomString, 256))
	proc := processName(parseCardinal(d.property(win, d.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)))

	appName := class
	if appName == "" {
		appName = instance
	}
	if appName == "" {
		appName = proc
	}
	if appName == "" {
		appName = "unknown"
	}

	return &window.WindowInfo{
		AppName:       appName,
		WindowTitle:   d.windowName(win),
		ProcessName:   proc,
		DisplayServer: "x11",
	}, nil
}

// activeWindow prefers the EWMH _NET_ACTIVE_WINDOW hint and falls back to
// the top-level parent of the input focus for window managers without it.
func (d *Detector) activeWindow() (xproto.Window, error) {
	for attempt := 0; attempt < 3; attempt++ {
		focus, err := xproto.GetInputFocus(d.conn).Reply()
		if err != nil || focus == nil {
			if err == nil {
				err = errors.New("empty reply")
			}
			return 0, window.NewFatal(Strategy, errors.Wrap(err, "X server connection lost"))
		}

		if win := parseWindow(d.property(d.root, d.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)); win != 0 && d.hasName(win) {
			return win, nil
		}

		if focus.Focus != 0 && focus.Focus != d.root && focus.Focus != xproto.InputFocusPointerRoot {
			if win := d.topLevel(focus.Focus); d.hasName(win) {
				return win, nil
			}
		}

		time.Sleep(20 * time.Millisecond)
	}
	return 0, window.NewTransient(Strategy, window.ErrNoActiveWindow)
}

func (d *Detector) property(win xproto.Window, atom, typ xproto.Atom, length uint32) []byte {
	reply, err := xproto.GetProperty(d.conn, false, win, atom, typ, 0, length).Reply()
	if err != nil || reply == nil {
		return nil
	}
	return reply.Value
}

func (d *Detector) topLevel(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(d.conn, win).Reply()
		if err != nil || reply.Parent == d.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (d *Detector) hasName(win xproto.Window) bool {
	return len(d.property(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 1)) > 0 ||
		len(d.property(win, d.atoms["WM_NAME"], xproto.AtomString, 1)) > 0
}

func (d *Detector) windowName(win xproto.Window) string {
	if name := trimName(d.property(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 1024)); name != "" {
		return name
	}
	return trimName(d.property(win, d.atoms["WM_NAME"], xproto.AtomString, 1024))
}

// Close closes the X connection
func (d *Detector) Close() error {
	d.once.Do(func() {
		if d.conn != nil {
			d.conn.Close()
		}
	})
	return nil
}

func trimName(data []byte) string {
	return strings.TrimRight(string(data), "\x00")
}

// parseWMClass splits the two NUL-terminated WM_CLASS strings.
func parseWMClass(data []byte) (instance, class string) {
	parts := strings.Split(trimName(data), "\x00")
	instance = parts[0]
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

func parseCardinal(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

func parseWindow(data []byte) xproto.Window {
	return xproto.Window(parseCardinal(data))
}

// processName reads the command name of pid from procfs.
func processName(pid uint32) string {
	if pid == 0 {
		return ""
	}
	data, err := os.ReadFile("/proc/" + strconv.FormatUint(uint64(pid), 10) + "/comm")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
