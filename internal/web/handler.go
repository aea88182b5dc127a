package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/internal/database"
	"github.com/shotwatch/shotwatch/internal/emitter"
	"github.com/shotwatch/shotwatch/internal/metrics"
	"github.com/shotwatch/shotwatch/internal/models"
	"github.com/shotwatch/shotwatch/internal/reporter"
)

// Version is reported by /api/0/info.
var Version = "dev"

// Options configures the collection service.
type Options struct {
	Hostname string
	Testing  bool
	// StorageDir is served under /{base(StorageDir)}/ so screenshot
	// references resolve to the images.
	StorageDir string
}

// Handler serves an ActivityWatch-compatible subset of the REST API over
// the local store.
type Handler struct {
	opts     Options
	repo     *database.Repository
	reporter *reporter.Reporter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	deviceID string

	// Heartbeats read then write the latest event; one at a time.
	mu sync.Mutex
}

// NewHandler creates the handler.
func NewHandler(repo *database.Repository, opts Options, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		opts:     opts,
		repo:     repo,
		reporter: reporter.New(repo),
		metrics:  m,
		logger:   logger.With("component", "server"),
		deviceID: uuid.NewString(),
	}
}

type bucketRequest struct {
	Client   string `json:"client"`
	Type     string `json:"type"`
	Hostname string `json:"hostname"`
}

// Routes builds the chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/api/0", func(r chi.Router) {
		r.Get("/info", h.handleInfo)
		r.Get("/buckets/", h.handleListBuckets)
		r.Get("/buckets/{id}", h.handleGetBucket)
		r.Post("/buckets/{id}", h.handleCreateBucket)
		r.Get("/buckets/{id}/events", h.handleEvents)
		r.Post("/buckets/{id}/heartbeat", h.handleHeartbeat)
		r.Get("/report", h.handleReport)
	})

	if h.opts.StorageDir != "" {
		prefix := "/" + filepath.Base(h.opts.StorageDir)
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(h.opts.StorageDir))))
	}
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"hostname":  h.opts.Hostname,
		"version":   Version,
		"testing":   h.opts.Testing,
		"device_id": h.deviceID,
	})
}

func (h *Handler) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.repo.ListBuckets()
	if err != nil {
		h.serverError(w, r, "failed to list buckets", err)
		return
	}

	out := make(map[string]models.Bucket, len(buckets))
	for _, b := range buckets {
		out[b.ID] = b
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetBucket(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, bucket)
}

// handleCreateBucket answers 304 when the bucket already exists.
func (h *Handler) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req bucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Client == "" || req.Type == "" || req.Hostname == "" {
		respondError(w, http.StatusBadRequest, "client, type and hostname are required")
		return
	}

	created, err := h.repo.CreateBucket(&models.Bucket{
		ID:       id,
		Name:     id,
		Type:     req.Type,
		Client:   req.Client,
		Hostname: req.Hostname,
	})
	if err != nil {
		h.serverError(w, r, "failed to create bucket", err)
		return
	}
	if !created {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.logger.Info("bucket created", "bucket", id, "client", req.Client)
	respondJSON(w, http.StatusOK, map[string]bool{"created": true})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit := 100
	if s := query.Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = l
	}
	var start time.Time
	if s := query.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid start, expected RFC 3339")
			return
		}
		start = t
	}

	events, err := h.repo.Events(bucket.ID, start, limit)
	if err != nil {
		h.serverError(w, r, "failed to fetch events", err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(w, r)
	if !ok {
		h.metrics.ServerHeartbeat(metrics.HeartbeatRejected)
		return
	}

	pulsetime, err := strconv.ParseFloat(r.URL.Query().Get("pulsetime"), 64)
	if err != nil || pulsetime < 0 {
		h.metrics.ServerHeartbeat(metrics.HeartbeatRejected)
		respondError(w, http.StatusBadRequest, "pulsetime query parameter is required")
		return
	}

	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil || event.Timestamp.IsZero() {
		h.metrics.ServerHeartbeat(metrics.HeartbeatRejected)
		respondError(w, http.StatusBadRequest, "invalid event")
		return
	}

	h.mu.Lock()
	stored, merged, err := emitter.ApplyHeartbeat(h.repo, bucket.ID, &event, pulsetime)
	h.mu.Unlock()
	if err != nil {
		h.serverError(w, r, "failed to apply heartbeat", err)
		return
	}

	if merged {
		h.metrics.ServerHeartbeat(metrics.HeartbeatMerged)
	} else {
		h.metrics.ServerHeartbeat(metrics.HeartbeatInserted)
	}
	respondJSON(w, http.StatusOK, stored)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.GenerateReport(r.URL.Query().Get("period"))
	if errors.Is(err, reporter.ErrInvalidPeriod) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.serverError(w, r, "failed to generate report", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// bucket loads the {id} bucket, answering 404 when it does not exist.
func (h *Handler) bucket(w http.ResponseWriter, r *http.Request) (*models.Bucket, bool) {
	id := chi.URLParam(r, "id")
	bucket, err := h.repo.GetBucket(id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "there's no bucket named "+id)
		return nil, false
	}
	if err != nil {
		h.serverError(w, r, "failed to get bucket", err)
		return nil, false
	}
	return bucket, true
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"request_id", middleware.GetReqID(r.Context()),
		"path", r.URL.Path,
		"error", err)
	respondError(w, http.StatusInternalServerError, msg)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
