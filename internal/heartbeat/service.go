// Package heartbeat runs the sampling loop: on every tick it samples the
// active window, redacts its title, captures a screenshot and emits one
// event that cross-references the image.
package heartbeat

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/internal/emitter"
	"github.com/shotwatch/shotwatch/internal/exclusion"
	"github.com/shotwatch/shotwatch/internal/logging"
	"github.com/shotwatch/shotwatch/internal/metrics"
	"github.com/shotwatch/shotwatch/internal/models"
	"github.com/shotwatch/shotwatch/pkg/screenshot"
	"github.com/shotwatch/shotwatch/pkg/window"
)

// ProbeDuration is the nominal duration, in seconds, of every emitted
// event. It marks the event as an instant sample; the collector extends it
// through heartbeat merging.
const ProbeDuration = 5.0

// StopReason says why Run returned.
type StopReason string

const (
	StopOrphaned   StopReason = "orphaned"
	StopFatal      StopReason = "fatal-sample-error"
	StopTerminated StopReason = "terminated"
)

// Liveness reports whether the process that supervises the loop is gone.
type Liveness interface {
	Orphaned() bool
}

// ErrorRecorder persists failures the loop survived or stopped on.
type ErrorRecorder interface {
	CreateErrorLog(errorLog *models.ErrorLog) error
}

// PulsetimeMargin is added to the poll interval to tolerate the loop's
// own per-tick latency when the collector merges heartbeats.
const PulsetimeMargin = 1.0

// Pulsetime is the merge window, in seconds, sent with every heartbeat of
// a loop polling every poll.
func Pulsetime(poll time.Duration) float64 {
	return poll.Seconds() + PulsetimeMargin
}

// Options are fixed for the lifetime of a Service.
type Options struct {
	BucketID     string
	PollInterval time.Duration
	NameTemplate string
	StorageDir   string
}

// Dependencies are the collaborators of the loop. Liveness, Errors and
// Metrics are optional.
type Dependencies struct {
	Detector window.Detector
	Policy   *exclusion.Policy
	Capturer screenshot.Capturer
	Emitter  emitter.Emitter
	Logger   *logging.Logger
	Liveness Liveness
	Errors   ErrorRecorder
	Metrics  *metrics.Metrics
}

type Service struct {
	opts      Options
	deps      Dependencies
	pulsetime float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	mu      sync.Mutex
	running bool
	last    atomic.Pointer[window.WindowInfo]
}

func NewService(opts Options, deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger()
	}
	return &Service{
		opts:      opts,
		deps:      deps,
		pulsetime: Pulsetime(opts.PollInterval),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Run ticks until the supervisor disappears, sampling fails fatally or ctx
// is cancelled. Cancellation is only observed between ticks; a tick in
// progress always completes, including its emission. The returned error is
// non-nil only for StopFatal.
func (s *Service) Run(ctx context.Context) (StopReason, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", errors.New("heartbeat loop is already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log := s.deps.Logger
	log.Info("heartbeat loop started",
		"poll_interval", s.opts.PollInterval,
		"pulsetime", s.pulsetime,
		"strategy", s.deps.Detector.Strategy(),
		"capture_backend", s.deps.Capturer.Name())
	s.deps.Metrics.SetPollInterval(s.opts.PollInterval.Seconds())

	for {
		if s.deps.Liveness != nil && s.deps.Liveness.Orphaned() {
			log.Info("heartbeat loop stopped because parent process died")
			return StopOrphaned, nil
		}
		if ctx.Err() != nil {
			log.Info("heartbeat loop stopped by signal")
			return StopTerminated, nil
		}

		if err := s.tick(ctx); err != nil {
			return StopFatal, err
		}

		if !s.sleep(ctx, s.opts.PollInterval) {
			log.Info("heartbeat loop stopped by signal")
			return StopTerminated, nil
		}
	}
}

// IsRunning reports whether Run is in progress.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastWindow returns the filtered window of the last emitted event.
func (s *Service) LastWindow() *window.WindowInfo {
	return s.last.Load()
}

// tick runs one sample-filter-capture-emit sequence. It returns an error
// only when sampling failed fatally.
func (s *Service) tick(ctx context.Context) error {
	log := s.deps.Logger

	current, err := s.deps.Detector.GetFocusedWindow()
	if err == nil && current == nil {
		err = window.NewTransient(s.deps.Detector.Strategy(), window.ErrNoActiveWindow)
	}
	if err != nil {
		if window.IsFatal(err) {
			s.deps.Metrics.SampleError(window.Fatal.String())
			// A failed log write does not keep a broken sampler running.
			_ = log.Write(slog.LevelError, "fatal error while sampling active window, stopping", "error", err)
			s.record("sample", window.Fatal.String(), err)
			return err
		}

		s.deps.Metrics.SampleError(window.Transient.String())
		s.deps.Metrics.Tick(metrics.OutcomeNoWindow)
		if logErr := log.Write(slog.LevelWarn, "unable to fetch window, trying again on next poll", "error", err); logErr != nil {
			s.record("log", window.Transient.String(), logErr)
		}
		s.record("sample", window.Transient.String(), err)
		return nil
	}
	log.Debug("sampled window", "application", current.AppName, "title", current.WindowTitle)

	filtered := s.deps.Policy.Apply(*current)

	path, err := s.deps.Capturer.Capture(filepath.Join(s.opts.StorageDir, s.opts.NameTemplate))
	if err != nil {
		s.deps.Metrics.Tick(metrics.OutcomeCapture)
		log.Warn("screenshot failed, skipping this poll", "error", err)
		s.record("capture", "", err)
		return nil
	}
	reference := screenshot.Reference(path)
	log.Debug("screenshot saved", "path", path)

	event := &models.Event{
		Timestamp: s.now().UTC(),
		Duration:  ProbeDuration,
		Data: map[string]any{
			models.KeyApplication: filtered.AppName,
			models.KeyTitle:       filtered.WindowTitle,
			models.KeyScreenshot:  reference,
		},
	}

	// The emission belongs to this tick, so it is not cut short by a
	// termination signal that arrived meanwhile.
	err = s.deps.Emitter.Heartbeat(context.WithoutCancel(ctx), s.opts.BucketID, event, s.pulsetime)
	if err != nil {
		s.deps.Metrics.Tick(metrics.OutcomeEmitError)
		log.Error("failed to emit event", "error", err)
		s.record("emit", "", err)
		return nil
	}

	s.deps.Metrics.Tick(metrics.OutcomeEmitted)
	s.last.Store(&filtered)
	return nil
}

func (s *Service) record(kind, severity string, err error) {
	if s.deps.Errors == nil {
		return
	}
	errorLog := &models.ErrorLog{
		Timestamp: s.now(),
		Kind:      kind,
		Severity:  severity,
		ErrorMsg:  err.Error(),
	}
	if dbErr := s.deps.Errors.CreateErrorLog(errorLog); dbErr != nil {
		s.deps.Logger.Debug("failed to store error in database", "error", dbErr, "original_error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
