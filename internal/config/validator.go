package config

import (
	"fmt"
	"strings"

	"github.com/shotwatch/shotwatch/internal/exclusion"
	"github.com/shotwatch/shotwatch/internal/logging"
	"github.com/shotwatch/shotwatch/pkg/screenshot"
)

// ValidationError represents a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ConfigurationError collects every invalid setting found at startup. The
// watcher never starts its loop when one is returned.
type ConfigurationError []ValidationError

func (e ConfigurationError) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return "invalid configuration: " + e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d configuration errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ValidStrategies returns the accepted watcher.strategy values.
func ValidStrategies() []string {
	return []string{"auto", "x11", "xdotool", "wayland", "applescript", "jxa"}
}

// ValidEmitterModes returns the accepted emitter.mode values.
func ValidEmitterModes() []string {
	return []string{"remote", "local"}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks every setting and returns a ConfigurationError, or nil.
func (c *Config) Validate() error {
	var errs ConfigurationError

	errs = append(errs, c.validateWatcher()...)
	errs = append(errs, c.validateCapture()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateEmitter()...)

	if c.Database.Path == "" {
		errs = append(errs, ValidationError{"database.path", c.Database.Path, "must not be empty"})
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level,
			"must be one of " + strings.Join(logging.ValidLevels(), ", ")})
	}
	if c.Daemon.PIDFile == "" {
		errs = append(errs, ValidationError{"daemon.pid_file", c.Daemon.PIDFile, "must not be empty"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (c *Config) validateWatcher() []ValidationError {
	var errs []ValidationError
	w := c.Watcher

	if w.PollTime <= 0 || w.PollTime > MaxPollTime {
		errs = append(errs, ValidationError{"watcher.poll_time", w.PollTime,
			fmt.Sprintf("must be greater than 0 and at most %g seconds", MaxPollTime)})
	}
	if w.Strategy == "swift" {
		errs = append(errs, ValidationError{"watcher.strategy", w.Strategy, "is not supported"})
	} else if !contains(ValidStrategies(), w.Strategy) {
		errs = append(errs, ValidationError{"watcher.strategy", w.Strategy,
			"must be one of " + strings.Join(ValidStrategies(), ", ")})
	}
	if w.OnWindowChange {
		errs = append(errs, ValidationError{"watcher.on_window_change", w.OnWindowChange, "is not implemented"})
	}
	if _, err := exclusion.Compile(w.ExcludeTitle, w.ExcludeTitles); err != nil {
		errs = append(errs, ValidationError{"watcher.exclude_titles", w.ExcludeTitles, err.Error()})
	}
	return errs
}

func (c *Config) validateCapture() []ValidationError {
	var errs []ValidationError

	if err := screenshot.ValidateTemplate(c.Capture.NameTemplate); err != nil {
		errs = append(errs, ValidationError{"capture.name_template", c.Capture.NameTemplate, err.Error()})
	}
	if c.Capture.StorageDir == "" {
		errs = append(errs, ValidationError{"capture.storage_dir", c.Capture.StorageDir, "must not be empty"})
	}
	if !screenshot.IsBackend(c.Capture.Backend) {
		errs = append(errs, ValidationError{"capture.backend", c.Capture.Backend,
			"must be one of " + strings.Join(screenshot.Backends, ", ")})
	}
	return errs
}

func (c *Config) validateServer() []ValidationError {
	var errs []ValidationError

	if c.Server.Host == "" {
		errs = append(errs, ValidationError{"server.host", c.Server.Host, "must not be empty"})
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{"server.port", c.Server.Port, "must be between 1 and 65535"})
	}
	return errs
}

func (c *Config) validateEmitter() []ValidationError {
	var errs []ValidationError
	e := c.Emitter

	if !contains(ValidEmitterModes(), e.Mode) {
		errs = append(errs, ValidationError{"emitter.mode", e.Mode,
			"must be one of " + strings.Join(ValidEmitterModes(), ", ")})
	}
	if e.CommitInterval < 0 {
		errs = append(errs, ValidationError{"emitter.commit_interval", e.CommitInterval, "must not be negative"})
	}
	if e.StartTimeout <= 0 {
		errs = append(errs, ValidationError{"emitter.start_timeout", e.StartTimeout, "must be positive"})
	}
	if e.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{"emitter.request_timeout", e.RequestTimeout, "must be positive"})
	}
	return errs
}
