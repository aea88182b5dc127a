package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SHOTWATCH_WATCHER_POLL_TIME.
const EnvPrefix = "SHOTWATCH"

// SetDefaults registers every key with its default so that environment
// variables are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("watcher.poll_time", d.Watcher.PollTime)
	v.SetDefault("watcher.exclude_title", d.Watcher.ExcludeTitle)
	v.SetDefault("watcher.exclude_titles", d.Watcher.ExcludeTitles)
	v.SetDefault("watcher.strategy", d.Watcher.Strategy)
	v.SetDefault("watcher.on_window_change", d.Watcher.OnWindowChange)
	v.SetDefault("watcher.exit_with_parent", d.Watcher.ExitWithParent)

	v.SetDefault("capture.name_template", d.Capture.NameTemplate)
	v.SetDefault("capture.storage_dir", d.Capture.StorageDir)
	v.SetDefault("capture.backend", d.Capture.Backend)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.testing", d.Server.Testing)

	v.SetDefault("emitter.mode", d.Emitter.Mode)
	v.SetDefault("emitter.commit_interval", d.Emitter.CommitInterval)
	v.SetDefault("emitter.start_timeout", d.Emitter.StartTimeout)
	v.SetDefault("emitter.request_timeout", d.Emitter.RequestTimeout)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.verbose", d.Logging.Verbose)

	v.SetDefault("daemon.pid_file", d.Daemon.PIDFile)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// NewViper returns a viper instance reading configFile (or the default
// config location when empty) with SHOTWATCH_ environment overrides.
// LOG_LEVEL is honoured as an alias for SHOTWATCH_LOGGING_LEVEL.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(WatcherName)
		v.SetConfigType("toml")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("logging.level", EnvPrefix+"_LOGGING_LEVEL", "LOG_LEVEL")

	return v
}

// Load reads the config file (a missing default file is not an error),
// unmarshals every layer and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	if cfg.Server.Testing && cfg.Server.Port == DefaultPort {
		cfg.Server.Port = TestingPort
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
