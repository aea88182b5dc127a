package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shotwatch/shotwatch/internal/config"
	"github.com/shotwatch/shotwatch/internal/daemon"
	"github.com/shotwatch/shotwatch/internal/database"
	"github.com/shotwatch/shotwatch/internal/emitter"
	"github.com/shotwatch/shotwatch/internal/heartbeat"
	"github.com/shotwatch/shotwatch/internal/logging"
	"github.com/shotwatch/shotwatch/internal/metrics"
	"github.com/shotwatch/shotwatch/internal/web"
	"github.com/shotwatch/shotwatch/pkg/detector"
	"github.com/shotwatch/shotwatch/pkg/screenshot"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watcher in the foreground",
	Long: `Run the heartbeat loop in the foreground until interrupted.

The loop stops when it receives SIGINT or SIGTERM, when the process that
started it exits (unless --exit-with-parent=false) or when window sampling
fails in a way that cannot recover. The last case exits non-zero.`,
	Args: cobra.NoArgs,
	RunE: runWatcher,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watcher in the background",
	Args:  cobra.NoArgs,
	RunE:  startWatcher,
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, startCmd} {
		f := cmd.Flags()
		f.Float64("poll-time", 0, "seconds between samples")
		f.Bool("exclude-title", false, "redact every window title")
		f.StringSlice("exclude-titles", nil, "redact titles matching these case-insensitive patterns")
		f.String("strategy", "", "window sampling strategy: "+strings.Join(config.ValidStrategies(), ", "))
		f.String("name-template", "", "screenshot file name; {date} is replaced by the capture time")
		f.String("storage-dir", "", "directory screenshots are written to")
		f.String("backend", "", "capture backend: "+strings.Join(screenshot.Backends, ", "))
		f.String("mode", "", "emitter mode: remote or local")
		f.String("metrics-listen", "", "serve Prometheus metrics on this address")
	}
	runCmd.Flags().Bool("exit-with-parent", true, "stop when the parent process exits or is init")

	rootCmd.AddCommand(runCmd, startCmd)
}

// newParentWatch is replaced in tests.
var newParentWatch = daemon.NewParentWatch

func runWatcher(cmd *cobra.Command, _ []string) error {
	// Startup can take up to the collector start timeout; the parent must
	// be recorded before it has a chance to exit.
	parent := newParentWatch()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	hostname := emitter.Hostname()
	bucketID := emitter.BucketID(config.WatcherName, hostname)
	log := logger.With("run_id", uuid.NewString(), "bucket", bucketID)
	log.Debug("configuration loaded", "config", cfg.String())

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Capture.StorageDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create screenshot directory")
	}

	det, err := detector.New(cfg.Watcher.Strategy)
	if err != nil {
		return err
	}
	defer det.Close()

	capturer, err := screenshot.New(cfg.Capture.Backend)
	if err != nil {
		return err
	}
	defer capturer.Close()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := database.NewRepository(db)

	m := metrics.New(prometheus.NewRegistry())
	em, err := newEmitter(cfg, repo, hostname, log, m)
	if err != nil {
		return err
	}
	defer em.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := em.WaitForReady(ctx); err != nil {
		return errors.Wrapf(err, "collector at %s is not reachable", cfg.ServerURL())
	}
	if err := em.CreateBucket(ctx, bucketID, emitter.EventType); err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := web.NewServer(cfg.Metrics.Listen, mux, log.Slog())
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("metrics listener failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if daemon.IsChild() {
		dm := daemon.New(cfg.Daemon.PIDFile)
		if err := dm.WritePID(); err != nil {
			return err
		}
		defer dm.RemovePID()
	}

	var liveness heartbeat.Liveness
	if cfg.Watcher.ExitWithParent {
		log.Debug("watching parent process", "parent_pid", parent.Parent())
		liveness = parent
	}

	svc := heartbeat.NewService(heartbeat.Options{
		BucketID:     bucketID,
		PollInterval: cfg.PollInterval(),
		NameTemplate: cfg.Capture.NameTemplate,
		StorageDir:   cfg.Capture.StorageDir,
	}, heartbeat.Dependencies{
		Detector: det,
		Policy:   policy,
		Capturer: capturer,
		Emitter:  em,
		Logger:   log,
		Liveness: liveness,
		Errors:   repo,
		Metrics:  m,
	})

	reason, err := svc.Run(ctx)
	attrs := []any{"reason", string(reason)}
	if last := svc.LastWindow(); last != nil {
		attrs = append(attrs, "last_application", last.AppName)
	}
	log.Info("watcher stopped", attrs...)
	return err
}

func newEmitter(cfg *config.Config, repo *database.Repository, hostname string, log *logging.Logger, m *metrics.Metrics) (emitter.Emitter, error) {
	if cfg.Emitter.Mode == "local" {
		return emitter.NewLocalEmitter(repo, config.WatcherName, hostname), nil
	}
	return emitter.NewRemoteEmitter(repo, emitter.RemoteOptions{
		BaseURL:        cfg.ServerURL(),
		Client:         config.WatcherName,
		Hostname:       hostname,
		CommitInterval: cfg.Emitter.CommitInterval,
		StartTimeout:   cfg.Emitter.StartTimeout,
		RequestTimeout: cfg.Emitter.RequestTimeout,
		Logger:         log.Slog(),
		Metrics:        m,
	})
}

// startWatcher re-executes "run" detached from the terminal. The child
// outlives this process, so parent liveness is disabled for it.
func startWatcher(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return err
	}
	if running {
		return errors.Errorf("watcher is already running (PID: %d)", pid)
	}

	args := append([]string{"run"}, passthroughArgs(cmd)...)
	env := []string{config.EnvPrefix + "_WATCHER_EXIT_WITH_PARENT=false"}
	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = filepath.Join(config.DataDir(), config.WatcherName+".log")
		env = append(env, config.EnvPrefix+"_LOGGING_FILE="+logFile)
	}

	pid, err = daemon.Spawn(args, env...)
	if err != nil {
		return err
	}

	fmt.Printf("Watcher started (PID: %d)\n", pid)
	fmt.Printf("Logs: %s\n", logFile)
	return nil
}

// passthroughArgs re-creates the flags the user set so the child sees the
// same configuration.
func passthroughArgs(cmd *cobra.Command) []string {
	var args []string
	if configFile != "" {
		args = append(args, "--config", configFile)
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			for _, item := range sv.GetSlice() {
				args = append(args, "--"+f.Name+"="+item)
			}
			return
		}
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return args
}
