package emitter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shotwatch/shotwatch/internal/metrics"
	"github.com/shotwatch/shotwatch/internal/models"
)

type recorded struct {
	method string
	path   string
	query  string
	body   []byte
}

type fakeCollector struct {
	mu       sync.Mutex
	requests []recorded
	status   func(r *http.Request) int
}

func (c *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, recorded{r.Method, r.URL.Path, r.URL.RawQuery, body})
	c.mu.Unlock()

	code := http.StatusOK
	if c.status != nil {
		code = c.status(r)
	}
	w.WriteHeader(code)
}

func (c *fakeCollector) posts(path string) []recorded {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []recorded
	for _, r := range c.requests {
		if r.method == http.MethodPost && r.path == path {
			out = append(out, r)
		}
	}
	return out
}

func newRemote(t *testing.T, url string, m *metrics.Metrics) (*RemoteEmitter, *queueProbe) {
	t.Helper()
	repo := newRepo(t)
	em, err := NewRemoteEmitter(repo, RemoteOptions{
		BaseURL:        url,
		Client:         "shotwatch",
		Hostname:       "host",
		CommitInterval: 10 * time.Second,
		StartTimeout:   time.Second,
		RequestTimeout: time.Second,
		DrainTimeout:   3 * time.Second,
		Metrics:        m,
	})
	require.NoError(t, err)
	return em, &queueProbe{repo: repo}
}

type queueProbe struct {
	repo interface{ QueueDepth() (int64, error) }
}

func (f *queueProbe) depth(t *testing.T) int64 {
	n, err := f.repo.QueueDepth()
	require.NoError(t, err)
	return n
}

const heartbeatPath = "/api/0/buckets/shotwatch_host/heartbeat"

func TestRemoteWaitForReady(t *testing.T) {
	srv := httptest.NewServer(&fakeCollector{})
	defer srv.Close()

	em, _ := newRemote(t, srv.URL, nil)
	defer em.Close()
	assert.NoError(t, em.WaitForReady(context.Background()))
}

func TestRemoteWaitForReadyTimesOut(t *testing.T) {
	srv := httptest.NewServer(&fakeCollector{status: func(*http.Request) int { return http.StatusServiceUnavailable }})
	defer srv.Close()

	em, _ := newRemote(t, srv.URL, nil)
	defer em.Close()

	start := time.Now()
	err := em.WaitForReady(context.Background())
	require.Error(t, err)
	var emitErr *EmitError
	assert.ErrorAs(t, err, &emitErr)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRemotePreMergesHeartbeats(t *testing.T) {
	collector := &fakeCollector{}
	srv := httptest.NewServer(collector)
	defer srv.Close()

	em, queue := newRemote(t, srv.URL, nil)
	ctx := context.Background()

	require.NoError(t, em.CreateBucket(ctx, "shotwatch_host", EventType))
	require.Eventually(t, func() bool {
		return len(collector.posts("/api/0/buckets/shotwatch_host")) == 1
	}, 3*time.Second, 10*time.Millisecond)

	var bucket map[string]string
	require.NoError(t, json.Unmarshal(collector.posts("/api/0/buckets/shotwatch_host")[0].body, &bucket))
	assert.Equal(t, map[string]string{"client": "shotwatch", "type": "screenshot", "hostname": "host"}, bucket)

	// Two continuations stay in memory.
	require.NoError(t, em.Heartbeat(ctx, "shotwatch_host", ev(0, 5, "a", "t"), 21))
	require.NoError(t, em.Heartbeat(ctx, "shotwatch_host", ev(4*time.Second, 5, "a", "t"), 21))
	assert.Empty(t, collector.posts(heartbeatPath))

	// A different window commits the merged heartbeat.
	require.NoError(t, em.Heartbeat(ctx, "shotwatch_host", ev(8*time.Second, 5, "b", "t"), 21))
	require.Eventually(t, func() bool {
		return len(collector.posts(heartbeatPath)) == 1
	}, 3*time.Second, 10*time.Millisecond)

	first := collector.posts(heartbeatPath)[0]
	assert.Equal(t, "pulsetime=21", first.query)
	var sent models.Event
	require.NoError(t, json.Unmarshal(first.body, &sent))
	assert.Equal(t, 9.0, sent.Duration)
	assert.Equal(t, "a", sent.Data["application"])
	assert.True(t, sent.Timestamp.Equal(t0))

	// Close flushes the pending heartbeat.
	require.NoError(t, em.Close())
	hbs := collector.posts(heartbeatPath)
	require.Len(t, hbs, 2)
	require.NoError(t, json.Unmarshal(hbs[1].body, &sent))
	assert.Equal(t, "b", sent.Data["application"])
	assert.Equal(t, int64(0), queue.depth(t))

	err := em.Heartbeat(ctx, "shotwatch_host", ev(20*time.Second, 5, "b", "t"), 21)
	var emitErr *EmitError
	assert.ErrorAs(t, err, &emitErr)
}

func TestRemoteCommitsLongHeartbeats(t *testing.T) {
	collector := &fakeCollector{}
	srv := httptest.NewServer(collector)
	defer srv.Close()

	em, _ := newRemote(t, srv.URL, nil)
	defer em.Close()
	ctx := context.Background()

	require.NoError(t, em.Heartbeat(ctx, "shotwatch_host", ev(0, 5, "a", "t"), 21))
	require.NoError(t, em.Heartbeat(ctx, "shotwatch_host", ev(20*time.Second, 5, "a", "t"), 21))
	assert.Empty(t, collector.posts(heartbeatPath))

	// The pending heartbeat now lasts 25s, past the 10s commit interval.
	require.NoError(t, em.Heartbeat(ctx, "shotwatch_host", ev(40*time.Second, 5, "a", "t"), 21))
	require.Eventually(t, func() bool {
		return len(collector.posts(heartbeatPath)) == 1
	}, 3*time.Second, 10*time.Millisecond)

	var sent models.Event
	require.NoError(t, json.Unmarshal(collector.posts(heartbeatPath)[0].body, &sent))
	assert.Equal(t, 45.0, sent.Duration)
}

func TestRemoteDropsClientErrors(t *testing.T) {
	collector := &fakeCollector{status: func(r *http.Request) int {
		if r.URL.Path == "/api/0/buckets/shotwatch_host" {
			return http.StatusNotModified
		}
		return http.StatusBadRequest
	}}
	srv := httptest.NewServer(collector)
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	em, queue := newRemote(t, srv.URL, m)
	ctx := context.Background()

	require.NoError(t, em.CreateBucket(ctx, "shotwatch_host", EventType))
	require.NoError(t, em.Heartbeat(ctx, "shotwatch_host", ev(0, 5, "a", "t"), 21))
	require.NoError(t, em.Close())

	assert.Equal(t, int64(0), queue.depth(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(metrics.RequestDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(metrics.RequestDropped)))
}

func TestRemoteRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	failures := 1
	collector := &fakeCollector{status: func(*http.Request) int {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}}
	srv := httptest.NewServer(collector)
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	em, queue := newRemote(t, srv.URL, m)
	defer em.Close()

	require.NoError(t, em.CreateBucket(context.Background(), "shotwatch_host", EventType))
	require.Eventually(t, func() bool {
		return len(collector.posts("/api/0/buckets/shotwatch_host")) == 2
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return queue.depth(t) == 0 }, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(metrics.RequestRetried)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(metrics.RequestDelivered)))
}

func TestRemoteQueueSurvivesOutage(t *testing.T) {
	srv := httptest.NewServer(&fakeCollector{})
	url := srv.URL
	srv.Close()

	repo := newRepo(t)
	em, err := NewRemoteEmitter(repo, RemoteOptions{
		BaseURL:        url,
		Client:         "shotwatch",
		Hostname:       "host",
		RequestTimeout: 200 * time.Millisecond,
		DrainTimeout:   100 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, em.CreateBucket(context.Background(), "shotwatch_host", EventType))
	require.NoError(t, em.Close())

	depth, err := repo.QueueDepth()
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth, "undelivered requests stay queued for the next run")
}

func TestNewRemoteEmitterRejectsEmptyURL(t *testing.T) {
	_, err := NewRemoteEmitter(newRepo(t), RemoteOptions{})
	assert.Error(t, err)
}
