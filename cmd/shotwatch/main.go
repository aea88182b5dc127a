// Command shotwatch records the focused window together with a screenshot
// of the screen on every poll and sends both to an ActivityWatch-compatible
// collector.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shotwatch/shotwatch/internal/config"
	"github.com/shotwatch/shotwatch/internal/web"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

var configFile string

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"verbose":          "logging.verbose",
	"log-level":        "logging.level",
	"log-file":         "logging.file",
	"testing":          "server.testing",
	"host":             "server.host",
	"port":             "server.port",
	"db":               "database.path",
	"poll-time":        "watcher.poll_time",
	"exclude-title":    "watcher.exclude_title",
	"exclude-titles":   "watcher.exclude_titles",
	"strategy":         "watcher.strategy",
	"exit-with-parent": "watcher.exit_with_parent",
	"name-template":    "capture.name_template",
	"storage-dir":      "capture.storage_dir",
	"backend":          "capture.backend",
	"mode":             "emitter.mode",
	"metrics-listen":   "metrics.listen",
}

var rootCmd = &cobra.Command{
	Use:   config.WatcherName,
	Short: "Screenshot activity watcher",
	Long: `shotwatch samples the focused window every poll interval, takes a
screenshot and emits a heartbeat event that references the image.

Configuration is read from ` + config.ConfigFile() + `, then
SHOTWATCH_* environment variables, then command line flags.`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	web.Version = version

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (default "+config.ConfigFile()+")")
	pf.BoolP("verbose", "v", false, "log at DEBUG level")
	pf.String("log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	pf.String("log-file", "", "also append logs to this file")
	pf.Bool("testing", false, "use the testing collector port")
	pf.String("host", "", "collector host")
	pf.Int("port", 0, "collector port")
	pf.String("db", "", "sqlite database path")
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper(configFile)
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = errors.Wrapf(err, "failed to bind flag --%s", f.Name)
		}
	})
	return bindErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
