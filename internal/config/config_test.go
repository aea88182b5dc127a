package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shotwatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20*time.Second, cfg.PollInterval())
	assert.True(t, cfg.Watcher.ExitWithParent)
	assert.Equal(t, "monitor_{mon}_{date}.png", cfg.Capture.NameTemplate)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[watcher]
poll_time = 5.5
exclude_titles = ["secret", "bank"]
strategy = "x11"

[capture]
name_template = "{date}.jpg"
storage_dir = "/tmp/shots"

[emitter]
mode = "local"
commit_interval = "30s"

[logging]
level = "debug"
`)

	cfg, err := Load(NewViper(path))
	require.NoError(t, err)

	assert.Equal(t, 5.5, cfg.Watcher.PollTime)
	assert.Equal(t, []string{"secret", "bank"}, cfg.Watcher.ExcludeTitles)
	assert.Equal(t, "x11", cfg.Watcher.Strategy)
	assert.Equal(t, "{date}.jpg", cfg.Capture.NameTemplate)
	assert.Equal(t, "/tmp/shots", cfg.Capture.StorageDir)
	assert.Equal(t, "local", cfg.Emitter.Mode)
	assert.Equal(t, 30*time.Second, cfg.Emitter.CommitInterval)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "[watcher]\npoll_time = 5.0\n")
	t.Setenv("SHOTWATCH_WATCHER_POLL_TIME", "7")
	t.Setenv("SHOTWATCH_SERVER_TESTING", "true")

	cfg, err := Load(NewViper(path))
	require.NoError(t, err)
	assert.Equal(t, 7.0, cfg.Watcher.PollTime)
	assert.Equal(t, TestingPort, cfg.Server.Port)
}

func TestLoadLogLevelAlias(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(NewViper(path))
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)

	t.Setenv("SHOTWATCH_LOGGING_LEVEL", "error")
	cfg, err = Load(NewViper(path))
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(filepath.Join(t.TempDir(), "missing.toml")))
	assert.Error(t, err)
}

func TestLoadWithoutDefaultFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(NewViper(""))
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.Watcher.PollTime)
}

func TestLoadRejectsInvalidPattern(t *testing.T) {
	path := writeConfig(t, "[watcher]\nexclude_titles = [\"(unclosed\"]\n")

	_, err := Load(NewViper(path))
	require.Error(t, err)

	var cerr ConfigurationError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr, 1)
	assert.Equal(t, "watcher.exclude_titles", cerr[0].Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero poll time", func(c *Config) { c.Watcher.PollTime = 0 }, "watcher.poll_time"},
		{"negative poll time", func(c *Config) { c.Watcher.PollTime = -1 }, "watcher.poll_time"},
		{"poll time too large", func(c *Config) { c.Watcher.PollTime = 7200 }, "watcher.poll_time"},
		{"swift strategy", func(c *Config) { c.Watcher.Strategy = "swift" }, "watcher.strategy"},
		{"unknown strategy", func(c *Config) { c.Watcher.Strategy = "win32" }, "watcher.strategy"},
		{"on window change", func(c *Config) { c.Watcher.OnWindowChange = true }, "watcher.on_window_change"},
		{"bad pattern", func(c *Config) { c.Watcher.ExcludeTitles = []string{"[a-"} }, "watcher.exclude_titles"},
		{"path template", func(c *Config) { c.Capture.NameTemplate = "a/{date}.png" }, "capture.name_template"},
		{"unsupported extension", func(c *Config) { c.Capture.NameTemplate = "{date}.bmp" }, "capture.name_template"},
		{"empty storage", func(c *Config) { c.Capture.StorageDir = "" }, "capture.storage_dir"},
		{"unknown backend", func(c *Config) { c.Capture.Backend = "mss" }, "capture.backend"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host"},
		{"bad mode", func(c *Config) { c.Emitter.Mode = "kafka" }, "emitter.mode"},
		{"zero start timeout", func(c *Config) { c.Emitter.StartTimeout = 0 }, "emitter.start_timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "TRACE" }, "logging.level"},
		{"empty pid file", func(c *Config) { c.Daemon.PIDFile = "" }, "daemon.pid_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cerr ConfigurationError
			require.ErrorAs(t, err, &cerr)
			require.Len(t, cerr, 1)
			assert.Equal(t, tt.field, cerr[0].Field)
		})
	}
}

func TestConfigurationErrorMessage(t *testing.T) {
	cfg := Default()
	cfg.Watcher.PollTime = 0
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 configuration errors")
	assert.Contains(t, err.Error(), "watcher.poll_time")
	assert.Contains(t, err.Error(), "server.port")
}

func TestPolicy(t *testing.T) {
	cfg := Default()
	cfg.Watcher.ExcludeTitle = true

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.True(t, policy.ExcludeAll())

	cfg.Watcher.ExcludeTitles = []string{"(?<=x)"}
	_, err = cfg.Policy()
	var cerr ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestString(t *testing.T) {
	cfg := Default()
	out := cfg.String()
	assert.Contains(t, out, "Poll Time: 20s")
	assert.Contains(t, out, "URL: http://127.0.0.1:5600")
	assert.Contains(t, out, "Exclude Titles: none")
}

func TestDataDirHonoursXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "shotwatch"), DataDir())

	cfg := Default()
	assert.Equal(t, filepath.Join(dir, "shotwatch", "screenshots"), cfg.Capture.StorageDir)
	assert.Equal(t, filepath.Join(dir, "shotwatch", "shotwatch.db"), cfg.Database.Path)
}
