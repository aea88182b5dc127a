package screenshot

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PathPlaceholder marks the output argument of a capture command.
const PathPlaceholder = "{path}"

const commandTimeout = 10 * time.Second

// CommandCapturer delegates to an external screenshot tool such as grim or
// screencapture.
type CommandCapturer struct {
	name    string
	argv    []string
	timeout time.Duration
	now     func() time.Time
}

// NewCommandCapturer builds a capturer for argv; one element must contain
// PathPlaceholder.
func NewCommandCapturer(name string, argv ...string) (*CommandCapturer, error) {
	if len(argv) == 0 {
		return nil, errors.New("capture command is empty")
	}
	found := false
	for _, arg := range argv {
		if strings.Contains(arg, PathPlaceholder) {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Errorf("capture command %q has no %s argument", argv[0], PathPlaceholder)
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, errors.Wrapf(err, "capture command %q not available", argv[0])
	}

	return &CommandCapturer{
		name:    name,
		argv:    argv,
		timeout: commandTimeout,
		now:     time.Now,
	}, nil
}

func (c *CommandCapturer) Name() string {
	return c.name
}

func (c *CommandCapturer) Capture(template string) (string, error) {
	path, err := absolute(Expand(template, c.now()))
	if err != nil {
		return "", &CaptureError{Backend: c.name, Err: err}
	}

	args := make([]string, len(c.argv)-1)
	for i, arg := range c.argv[1:] {
		args[i] = strings.ReplaceAll(arg, PathPlaceholder, path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.argv[0], args...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", &CaptureError{Backend: c.name, Path: path, Err: errors.Errorf("timed out after %v", c.timeout)}
	}
	if err != nil {
		return "", &CaptureError{
			Backend: c.name,
			Path:    path,
			Err:     errors.Wrapf(err, "%s: %s", c.argv[0], strings.TrimSpace(string(out))),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &CaptureError{Backend: c.name, Path: path, Err: errors.Wrap(err, "no image written")}
	}
	if info.Size() == 0 {
		return "", &CaptureError{Backend: c.name, Path: path, Err: errors.New("empty image written")}
	}
	return path, nil
}

func (c *CommandCapturer) Close() error {
	return nil
}
