package common

import (
	"bytes"
	"context"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/pkg/window"
)

// DefaultTimeout bounds every helper command a detector runs.
const DefaultTimeout = 5 * time.Second

// Runner executes a helper command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exec is the Runner backed by os/exec. A non-zero exit carries the
// command's stderr in the error message.
func Exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, errors.Wrap(err, msg)
		}
		return out, err
	}
	return out, nil
}

// CommandExists checks if a command is available in PATH
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Command runs helper commands for one sampling strategy and classifies
// their failures.
type Command struct {
	Strategy string
	Run      Runner
	Timeout  time.Duration
}

// NewCommand returns a Command using Exec and DefaultTimeout.
func NewCommand(strategy string) *Command {
	return &Command{Strategy: strategy, Run: Exec, Timeout: DefaultTimeout}
}

// Output runs name with args. A helper that is missing or cannot be
// executed is Fatal; a timeout or a non-zero exit is Transient.
func (c *Command) Output(name string, args ...string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := c.Run(ctx, name, args...)
	if err == nil {
		return strings.TrimSpace(string(out)), nil
	}

	switch {
	case errors.Is(err, exec.ErrNotFound):
		return "", window.NewFatal(c.Strategy, errors.Wrapf(err, "%s is not installed", name))
	case ctx.Err() != nil:
		return "", window.NewTransient(c.Strategy, errors.Errorf("%s timed out after %s", name, timeout))
	case notStarted(err):
		return "", window.NewFatal(c.Strategy, errors.Wrapf(err, "%s cannot be executed", name))
	default:
		return "", window.NewTransient(c.Strategy, errors.Wrapf(err, "%s failed", name))
	}
}

// notStarted reports whether err came from starting the process (lookup,
// permission, bad executable format) rather than from the process itself.
func notStarted(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false
	}
	var execErr *exec.Error
	var pathErr *fs.PathError
	return errors.As(err, &execErr) || errors.As(err, &pathErr)
}
