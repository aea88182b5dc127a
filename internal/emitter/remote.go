package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/internal/database"
	"github.com/shotwatch/shotwatch/internal/metrics"
	"github.com/shotwatch/shotwatch/internal/models"
)

// RemoteOptions configures a RemoteEmitter.
type RemoteOptions struct {
	BaseURL        string
	Client         string
	Hostname       string
	CommitInterval time.Duration
	StartTimeout   time.Duration
	RequestTimeout time.Duration
	// DrainTimeout bounds how long Close waits for the queue to empty.
	DrainTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// RemoteEmitter talks to an ActivityWatch-compatible collection service.
// Heartbeats are pre-merged in memory per bucket; a heartbeat is only sent
// when the next one no longer continues it or it has grown past
// CommitInterval. Every request goes through a persistent FIFO queue that
// one dispatcher goroutine delivers with exponential backoff, so events
// survive collector outages and restarts.
type RemoteEmitter struct {
	opts   RemoteOptions
	http   *http.Client
	queue  *database.Repository
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingHeartbeat

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

type pendingHeartbeat struct {
	event     *models.Event
	pulsetime float64
}

// statusError is a collector response that is neither success nor an
// accepted duplicate.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("collector responded %d: %s", e.code, e.body)
}

// NewRemoteEmitter starts the queue dispatcher.
func NewRemoteEmitter(queue *database.Repository, opts RemoteOptions) (*RemoteEmitter, error) {
	if _, err := url.Parse(opts.BaseURL); err != nil || opts.BaseURL == "" {
		return nil, errors.Errorf("invalid collector URL %q", opts.BaseURL)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 10 * time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = opts.StartTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &RemoteEmitter{
		opts:    opts,
		http:    &http.Client{Timeout: opts.RequestTimeout},
		queue:   queue,
		logger:  logger.With("component", "emitter"),
		pending: make(map[string]pendingHeartbeat),
		wake:    make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go e.dispatch(ctx)
	e.notify()
	return e, nil
}

// WaitForReady polls GET /api/0/info until it succeeds or StartTimeout
// passes.
func (e *RemoteEmitter) WaitForReady(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = e.opts.StartTimeout

	op := func() error {
		code, _, err := e.do(ctx, http.MethodGet, "/api/0/info", nil)
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return &statusError{code: code}
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return &EmitError{Op: "wait for collector", Bucket: e.opts.BaseURL, Err: err}
	}
	return nil
}

// CreateBucket queues the bucket creation; an existing bucket is accepted.
func (e *RemoteEmitter) CreateBucket(_ context.Context, bucketID, eventType string) error {
	body, err := json.Marshal(map[string]string{
		"client":   e.opts.Client,
		"type":     eventType,
		"hostname": e.opts.Hostname,
	})
	if err != nil {
		return &EmitError{Op: "create bucket", Bucket: bucketID, Err: err}
	}
	if err := e.enqueue(http.MethodPost, bucketPath(bucketID), body); err != nil {
		return &EmitError{Op: "create bucket", Bucket: bucketID, Err: err}
	}
	return nil
}

// Heartbeat pre-merges event with the bucket's pending heartbeat and
// queues whatever has to be committed.
func (e *RemoteEmitter) Heartbeat(_ context.Context, bucketID string, event *models.Event, pulsetime float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return &EmitError{Op: "heartbeat", Bucket: bucketID, Err: errors.New("emitter is closed")}
	}

	last, ok := e.pending[bucketID]
	if !ok {
		e.pending[bucketID] = pendingHeartbeat{event: event.Clone(), pulsetime: pulsetime}
		return nil
	}

	commit := last
	next := pendingHeartbeat{event: event.Clone(), pulsetime: pulsetime}

	if merged := Merge(last.event, event, pulsetime); merged != nil {
		if seconds(last.event.Duration) < e.opts.CommitInterval {
			e.pending[bucketID] = pendingHeartbeat{event: merged, pulsetime: pulsetime}
			return nil
		}
		commit = pendingHeartbeat{event: merged, pulsetime: pulsetime}
	}

	e.pending[bucketID] = next
	if err := e.queueHeartbeat(bucketID, commit); err != nil {
		return &EmitError{Op: "heartbeat", Bucket: bucketID, Err: err}
	}
	return nil
}

func (e *RemoteEmitter) queueHeartbeat(bucketID string, hb pendingHeartbeat) error {
	body, err := json.Marshal(hb.event)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	path := bucketPath(bucketID) + "/heartbeat?pulsetime=" + strconv.FormatFloat(hb.pulsetime, 'f', -1, 64)
	return e.enqueue(http.MethodPost, path, body)
}

func (e *RemoteEmitter) enqueue(method, path string, body []byte) error {
	if err := e.queue.Enqueue(&models.QueuedRequest{Method: method, Path: path, Body: body}); err != nil {
		return err
	}
	e.reportDepth()
	e.notify()
	return nil
}

func (e *RemoteEmitter) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *RemoteEmitter) reportDepth() {
	if depth, err := e.queue.QueueDepth(); err == nil {
		e.opts.Metrics.SetQueueDepth(depth)
	}
}

// dispatch delivers queued requests in order until ctx is cancelled.
func (e *RemoteEmitter) dispatch(ctx context.Context) {
	defer close(e.done)

	for {
		req, err := e.queue.PeekQueue()
		if err != nil {
			e.logger.Error("failed to read request queue", "error", err)
		}
		if req == nil {
			select {
			case <-ctx.Done():
				return
			case <-e.wake:
				continue
			case <-time.After(time.Minute):
				continue
			}
		}

		if err := e.deliver(ctx, req); err != nil {
			// Only cancellation stops delivery; the request stays queued.
			return
		}
	}
}

// deliver retries req until it is accepted or permanently rejected, then
// removes it from the queue.
func (e *RemoteEmitter) deliver(ctx context.Context, req *models.QueuedRequest) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	op := func() error {
		code, body, err := e.do(ctx, req.Method, req.Path, req.Body)
		if err != nil {
			return err
		}
		switch {
		case code >= 200 && code < 300, code == http.StatusNotModified, code == http.StatusConflict:
			return nil
		case code >= 400 && code < 500:
			return backoff.Permanent(&statusError{code: code, body: body})
		default:
			return &statusError{code: code, body: body}
		}
	}
	notify := func(err error, wait time.Duration) {
		e.opts.Metrics.Request(metrics.RequestRetried)
		if markErr := e.queue.MarkAttempt(req.ID); markErr != nil {
			e.logger.Warn("failed to record delivery attempt", "error", markErr)
		}
		e.logger.Warn("collector request failed, retrying",
			"method", req.Method, "path", req.Path, "retry_in", wait, "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var status *statusError
	if err != nil && errors.As(err, &status) {
		e.opts.Metrics.Request(metrics.RequestDropped)
		e.logger.Error("collector rejected request, dropping it",
			"method", req.Method, "path", req.Path, "status", status.code, "body", status.body)
	} else if err == nil {
		e.opts.Metrics.Request(metrics.RequestDelivered)
	}

	if err := e.queue.Dequeue(req.ID); err != nil {
		e.logger.Error("failed to remove delivered request", "error", err)
	}
	e.reportDepth()
	return nil
}

func (e *RemoteEmitter) do(ctx context.Context, method, path string, body []byte) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.opts.BaseURL+path, reader)
	if err != nil {
		return 0, "", backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(bytes.TrimSpace(data)), nil
}

// Close commits every pending heartbeat, waits up to DrainTimeout for the
// queue to empty and stops the dispatcher. Undelivered requests stay in
// the queue for the next run.
func (e *RemoteEmitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true

	var firstErr error
	for bucketID, hb := range e.pending {
		if err := e.queueHeartbeat(bucketID, hb); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.pending = map[string]pendingHeartbeat{}
	e.mu.Unlock()

	deadline := time.Now().Add(e.opts.DrainTimeout)
	for time.Now().Before(deadline) {
		depth, err := e.queue.QueueDepth()
		if err != nil || depth == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	e.cancel()
	<-e.done
	return firstErr
}

func bucketPath(bucketID string) string {
	return "/api/0/buckets/" + url.PathEscape(bucketID)
}
