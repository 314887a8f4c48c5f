package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/radek-baczynski/pgjq/internal/config"
	"github.com/radek-baczynski/pgjq/internal/models"
	"github.com/radek-baczynski/pgjq/internal/ratelimit"
	"github.com/radek-baczynski/pgjq/internal/store"
	"github.com/radek-baczynski/pgjq/internal/telemetry"
)

// Engine is the queue operation surface the API serves. *store.Store
// implements it; tests substitute a stub.
type Engine interface {
	CreateQueue(ctx context.Context, name string) error
	DropQueue(ctx context.Context, name string) (bool, error)
	QueueExists(ctx context.Context, name string) (bool, error)
	ListQueues(ctx context.Context) ([]models.QueueRecord, error)

	Enqueue(ctx context.Context, queue string, p store.EnqueueParams) (string, error)
	Dequeue(ctx context.Context, queue string) (*models.Job, error)
	Ack(ctx context.Context, queue, jobID string) (bool, error)
	Nack(ctx context.Context, queue, jobID string) (bool, error)
	DeleteJob(ctx context.Context, queue, jobID string) (bool, error)
	PurgeQueue(ctx context.Context, queue string) (int, error)
	GetJob(ctx context.Context, queue, jobID string) (models.Job, error)
	ListJobs(ctx context.Context, queue string, params store.ListParams) (models.JobList, error)

	MarkStaleJobs(ctx context.Context, queue string) ([]string, error)
	CheckStaleJobs(ctx context.Context) (map[string][]string, error)

	Metrics(ctx context.Context, queue string) (models.MetricsSnapshot, error)
	MetricsAll(ctx context.Context) ([]models.MetricsSnapshot, error)
	MetricsTotal(ctx context.Context) (models.TotalSnapshot, error)
	JobsChart(ctx context.Context, queue string, from, to time.Time, bucket time.Duration) ([]models.ChartPoint, error)
}

// Server wires HTTP handlers over the queue engine.
type Server struct {
	cfg     config.Config
	engine  Engine
	limiter *ratelimit.TokenBucket // nil disables enqueue rate limiting
}

// New constructs the API server.
func New(cfg config.Config, engine Engine, limiter *ratelimit.TokenBucket) *Server {
	return &Server{cfg: cfg, engine: engine, limiter: limiter}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/queues", s.handleListQueues)
		r.Get("/stats", s.handleMetricsAll)
		r.Get("/stats/total", s.handleMetricsTotal)

		r.Route("/queues/{queue}", func(r chi.Router) {
			r.Put("/", s.handleCreateQueue)
			r.Delete("/", s.handleDropQueue)
			r.Get("/exists", s.handleQueueExists)
			r.Post("/purge", s.handlePurge)
			r.Post("/dequeue", s.handleDequeue)
			r.Post("/stale", s.handleMarkStale)
			r.Get("/stats", s.handleMetrics)
			r.Get("/chart", s.handleChart)

			r.Post("/jobs", s.handleEnqueue)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Delete("/jobs/{jobID}", s.handleDeleteJob)
			r.Post("/jobs/{jobID}/ack", s.handleAck)
			r.Post("/jobs/{jobID}/nack", s.handleNack)
		})
	})
	return r
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if err := s.engine.CreateQueue(r.Context(), queue); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"queue_name": queue})
}

func (s *Server) handleDropQueue(w http.ResponseWriter, r *http.Request) {
	existed, err := s.engine.DropQueue(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dropped": existed})
}

func (s *Server) handleQueueExists(w http.ResponseWriter, r *http.Request) {
	exists, err := s.engine.QueueExists(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.engine.ListQueues(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if queues == nil {
		queues = []models.QueueRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": queues})
}

type enqueueRequest struct {
	Job        json.RawMessage `json:"job"`
	Headers    json.RawMessage `json:"headers"`
	StaleAfter string          `json:"stale_after"`
	Priority   int             `json:"priority"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")

	if s.limiter != nil {
		allowed, _, err := s.limiter.AllowQueue(r.Context(), queue)
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	var staleAfter time.Duration
	if req.StaleAfter != "" {
		d, err := time.ParseDuration(req.StaleAfter)
		if err != nil || d <= 0 {
			http.Error(w, "stale_after must be a positive duration string", http.StatusBadRequest)
			return
		}
		staleAfter = d
	}

	id, err := s.engine.Enqueue(r.Context(), queue, store.EnqueueParams{
		Payload:    req.Job,
		Headers:    req.Headers,
		StaleAfter: staleAfter,
		Priority:   req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	telemetry.EnqueueCounter.Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": id})
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	// Opportunistic, throttled reaper trigger; failures here never block the
	// claim itself.
	_, _ = s.engine.CheckStaleJobs(r.Context())

	job, err := s.engine.Dequeue(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		writeError(w, err)
		return
	}
	if job == nil {
		telemetry.EmptyDequeues.Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	telemetry.DequeueCounter.Inc()
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	ok, err := s.engine.Ack(r.Context(), chi.URLParam(r, "queue"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ok {
		telemetry.AckCounter.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"acked": ok})
}

func (s *Server) handleNack(w http.ResponseWriter, r *http.Request) {
	ok, err := s.engine.Nack(r.Context(), chi.URLParam(r, "queue"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ok {
		telemetry.NackCounter.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"nacked": ok})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.engine.DeleteJob(r.Context(), chi.URLParam(r, "queue"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.PurgeQueue(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		writeError(w, err)
		return
	}
	telemetry.PurgedJobs.Add(float64(n))
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

func (s *Server) handleMarkStale(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.MarkStaleJobs(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	telemetry.StaleMarked.Add(float64(len(ids)))
	writeJSON(w, http.StatusOK, map[string]any{"staled": ids})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.GetJob(r.Context(), chi.URLParam(r, "queue"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.ListParams{
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
	}
	var err error
	if params.Page, err = intParam(q.Get("page")); err != nil {
		http.Error(w, "page must be an integer", http.StatusBadRequest)
		return
	}
	if params.PerPage, err = intParam(q.Get("per_page")); err != nil {
		http.Error(w, "per_page must be an integer", http.StatusBadRequest)
		return
	}
	if raw := q.Get("status"); raw != "" {
		params.Statuses = strings.Split(raw, ",")
	}

	list, err := s.engine.ListJobs(r.Context(), chi.URLParam(r, "queue"), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Metrics(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMetricsAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.engine.MetricsAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if all == nil {
		all = []models.MetricsSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": all})
}

func (s *Server) handleMetricsTotal(w http.ResponseWriter, r *http.Request) {
	total, err := s.engine.MetricsTotal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, total)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := time.Now()
	from := to.Add(-time.Hour)
	bucket := time.Minute

	var err error
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			http.Error(w, "from must be RFC3339", http.StatusBadRequest)
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			http.Error(w, "to must be RFC3339", http.StatusBadRequest)
			return
		}
	}
	if raw := q.Get("bucket"); raw != "" {
		if bucket, err = time.ParseDuration(raw); err != nil || bucket <= 0 {
			http.Error(w, "bucket must be a positive duration string", http.StatusBadRequest)
			return
		}
	}

	points, err := s.engine.JobsChart(r.Context(), chi.URLParam(r, "queue"), from, to, bucket)
	if err != nil {
		writeError(w, err)
		return
	}
	if points == nil {
		points = []models.ChartPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case store.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrQueueNotFound), errors.Is(err, store.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
