package screenshot

import (
	"image"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
)

// X11Capturer grabs the whole root window, which spans every monitor.
type X11Capturer struct {
	conn   *xgb.Conn
	root   xproto.Window
	width  uint16
	height uint16
	now    func() time.Time
}

// NewX11Capturer opens its own connection to the X server named by $DISPLAY.
func NewX11Capturer() (*X11Capturer, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to X server")
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	return &X11Capturer{
		conn:   conn,
		root:   screen.Root,
		width:  screen.WidthInPixels,
		height: screen.HeightInPixels,
		now:    time.Now,
	}, nil
}

func (c *X11Capturer) Name() string {
	return "x11"
}

// Capture writes the root window to the expanded template.
func (c *X11Capturer) Capture(template string) (string, error) {
	path, err := absolute(Expand(template, c.now()))
	if err != nil {
		return "", &CaptureError{Backend: c.Name(), Err: err}
	}

	img, err := c.grab()
	if err != nil {
		return "", &CaptureError{Backend: c.Name(), Path: path, Err: err}
	}
	if err := writeImage(path, img); err != nil {
		return "", &CaptureError{Backend: c.Name(), Path: path, Err: err}
	}
	return path, nil
}

func (c *X11Capturer) grab() (*image.RGBA, error) {
	reply, err := xproto.GetImage(c.conn, xproto.ImageFormatZPixmap, xproto.Drawable(c.root),
		0, 0, c.width, c.height, 0xffffffff).Reply()
	if err != nil {
		return nil, errors.Wrap(err, "GetImage failed")
	}
	return bgrxToRGBA(reply.Data, int(c.width), int(c.height))
}

// bgrxToRGBA converts a 32 bits-per-pixel little-endian ZPixmap.
func bgrxToRGBA(data []byte, width, height int) (*image.RGBA, error) {
	if len(data) < width*height*4 {
		return nil, errors.Errorf("short image data: got %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4] = data[i*4+2]
		img.Pix[i*4+1] = data[i*4+1]
		img.Pix[i*4+2] = data[i*4]
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

func (c *X11Capturer) Close() error {
	c.conn.Close()
	return nil
}
