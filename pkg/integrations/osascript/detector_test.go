package osascript

import (
	"context"
	"os/exec"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shotwatch/shotwatch/pkg/integrations/common"
	"github.com/shotwatch/shotwatch/pkg/window"
)

func newDetector(strategy string, run common.Runner) *Detector {
	cmd := common.NewCommand(strategy)
	cmd.Run = run
	return &Detector{strategy: strategy, cmd: cmd}
}

func reply(out string, err error) common.Runner {
	return func(context.Context, string, ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestNewDetectorRejectsUnknownStrategy(t *testing.T) {
	_, err := NewDetector("swift")
	assert.Error(t, err)
}

func TestAppleScript(t *testing.T) {
	var args []string
	d := newDetector(AppleScript, func(_ context.Context, name string, a ...string) ([]byte, error) {
		args = append([]string{name}, a...)
		return []byte("Safari\nApple - Start Page\n"), nil
	})

	info, err := d.GetFocusedWindow()
	require.NoError(t, err)
	assert.Equal(t, &window.WindowInfo{AppName: "Safari", WindowTitle: "Apple - Start Page", ProcessName: "Safari", DisplayServer: "quartz"}, info)
	assert.Equal(t, []string{"osascript", "-e", appleScript}, args)
}

func TestAppleScriptWithoutWindow(t *testing.T) {
	d := newDetector(AppleScript, reply("Finder\n", nil))

	info, err := d.GetFocusedWindow()
	require.NoError(t, err)
	assert.Equal(t, "Finder", info.AppName)
	assert.Empty(t, info.WindowTitle)
}

func TestJXA(t *testing.T) {
	var args []string
	d := newDetector(JXA, func(_ context.Context, name string, a ...string) ([]byte, error) {
		args = append([]string{name}, a...)
		return []byte(`{"app":"Code","title":"main.go · shotwatch"}`), nil
	})

	info, err := d.GetFocusedWindow()
	require.NoError(t, err)
	assert.Equal(t, "Code", info.AppName)
	assert.Equal(t, "main.go · shotwatch", info.WindowTitle)
	assert.Equal(t, "jxa", d.Strategy())
	assert.Equal(t, []string{"-l", "JavaScript"}, args[1:3])
}

func TestGetFocusedWindowErrors(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		run      common.Runner
		want     window.Severity
		is       error
	}{
		{
			name:     "automation denied",
			strategy: AppleScript,
			run:      reply("", errors.New("execution error: Not authorized to send Apple events to System Events. (-1743)")),
			want:     window.Fatal,
			is:       ErrPermissionDenied,
		},
		{
			name:     "assistive access denied",
			strategy: JXA,
			run:      reply("", errors.New("osascript is not allowed assistive access. (-1719)")),
			want:     window.Fatal,
			is:       ErrPermissionDenied,
		},
		{
			name:     "missing osascript",
			strategy: JXA,
			run:      reply("", &exec.Error{Name: "osascript", Err: exec.ErrNotFound}),
			want:     window.Fatal,
		},
		{
			name:     "script failure",
			strategy: AppleScript,
			run:      reply("", errors.New("execution error: Can’t get window 1. (-1728)")),
			want:     window.Transient,
		},
		{
			name:     "garbage output",
			strategy: JXA,
			run:      reply("undefined", nil),
			want:     window.Transient,
		},
		{
			name:     "no frontmost app",
			strategy: AppleScript,
			run:      reply("", nil),
			want:     window.Transient,
			is:       window.ErrNoActiveWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDetector(tt.strategy, tt.run).GetFocusedWindow()
			require.Error(t, err)
			assert.Equal(t, tt.want, window.Classify(err))
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
