package common

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shotwatch/shotwatch/pkg/window"
)

func TestCommandOutput(t *testing.T) {
	c := &Command{Strategy: "test", Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "xdotool", name)
		assert.Equal(t, []string{"getactivewindow"}, args)
		return []byte("  123\n"), nil
	}}

	out, err := c.Output("xdotool", "getactivewindow")
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestCommandClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		run  Runner
		want window.Severity
	}{
		{
			name: "missing binary",
			run: func(context.Context, string, ...string) ([]byte, error) {
				return nil, &exec.Error{Name: "xdotool", Err: exec.ErrNotFound}
			},
			want: window.Fatal,
		},
		{
			name: "non-zero exit",
			run: func(context.Context, string, ...string) ([]byte, error) {
				return nil, errors.New("exit status 1")
			},
			want: window.Transient,
		},
		{
			name: "bad executable format",
			run: func(context.Context, string, ...string) ([]byte, error) {
				return nil, errors.WithStack(&fs.PathError{Op: "fork/exec", Path: "/usr/bin/xdotool", Err: syscall.ENOEXEC})
			},
			want: window.Fatal,
		},
		{
			name: "not executable",
			run: func(context.Context, string, ...string) ([]byte, error) {
				return nil, &exec.Error{Name: "xdotool", Err: fs.ErrPermission}
			},
			want: window.Fatal,
		},
		{
			name: "timeout",
			run: func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			want: window.Transient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Command{Strategy: "xdotool", Run: tt.run, Timeout: 20 * time.Millisecond}
			_, err := c.Output("xdotool", "getactivewindow")
			require.Error(t, err)
			assert.Equal(t, tt.want, window.Classify(err))

			var se *window.SampleError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "xdotool", se.Strategy)
		})
	}
}

func TestCommandHelperThatCannotStart(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs exec permission bits")
	}
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "xdotool")
	require.NoError(t, os.WriteFile(corrupt, []byte{0x7f, 'E', 'L', 'F', 0, 1, 2, 3}, 0o755))
	noExec := filepath.Join(dir, "xprop")
	require.NoError(t, os.WriteFile(noExec, []byte("#!/bin/sh\n"), 0o644))

	for _, bin := range []string{corrupt, noExec} {
		_, err := NewCommand("xdotool").Output(bin)
		require.Error(t, err)
		assert.True(t, window.IsFatal(err), "%s: %v", filepath.Base(bin), err)
	}
}

func TestCommandNonZeroExitIsTransient(t *testing.T) {
	_, err := NewCommand("xdotool").Output("sh", "-c", "echo no window >&2; exit 1")
	require.Error(t, err)
	assert.Equal(t, window.Transient, window.Classify(err))
	assert.Contains(t, err.Error(), "no window")
}

func TestExec(t *testing.T) {
	out, err := Exec(context.Background(), "sh", "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))

	_, err = Exec(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = Exec(context.Background(), "nonexistent_command_xyz")
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestParseXProp(t *testing.T) {
	assert.Equal(t, "Inbox - Mail", ParseXPropString(`WM_NAME(STRING) = "Inbox - Mail"`))
	assert.Equal(t, "a = b", ParseXPropString(`_NET_WM_NAME(UTF8_STRING) = "a = b"`))
	assert.Equal(t, "", ParseXPropString("WM_NAME:  not found."))

	assert.Equal(t, "firefox", ParseWMClass(`WM_CLASS(STRING) = "Navigator", "firefox"`))
	assert.Equal(t, "xterm", ParseWMClass(`WM_CLASS(STRING) = "xterm"`))
	assert.Equal(t, "", ParseWMClass("WM_CLASS:  not found."))

	assert.Equal(t, "0x80032b", ParseActiveWindow("_NET_ACTIVE_WINDOW(WINDOW): window id # 0x80032b"))
	assert.Equal(t, "0x80032b", ParseActiveWindow("_NET_ACTIVE_WINDOW(WINDOW): window id # 0x80032b, 0x0"))
	assert.Equal(t, "", ParseActiveWindow("_NET_ACTIVE_WINDOW(WINDOW): window id # 0x0"))
	assert.Equal(t, "", ParseActiveWindow("_NET_ACTIVE_WINDOW:  not found."))
}
