package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "pgjq_enqueued_total", Help: "Jobs enqueued"})
	DequeueCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "pgjq_dequeued_total", Help: "Jobs claimed by workers"})
	EmptyDequeues    = prometheus.NewCounter(prometheus.CounterOpts{Name: "pgjq_empty_dequeues_total", Help: "Dequeue calls that found no eligible job"})
	AckCounter       = prometheus.NewCounter(prometheus.CounterOpts{Name: "pgjq_acked_total", Help: "Jobs acknowledged as completed"})
	NackCounter      = prometheus.NewCounter(prometheus.CounterOpts{Name: "pgjq_nacked_total", Help: "Jobs marked failed"})
	PurgedJobs       = prometheus.NewCounter(prometheus.CounterOpts{Name: "pgjq_purged_jobs_total", Help: "Jobs removed by queue purges"})
	StaleMarked      = prometheus.NewCounter(prometheus.CounterOpts{Name: "pgjq_stale_marked_total", Help: "Jobs reclaimed as stale by the reaper"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "pgjq_rate_limit_rejects_total", Help: "Enqueue requests rejected by the rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			DequeueCounter,
			EmptyDequeues,
			AckCounter,
			NackCounter,
			PurgedJobs,
			StaleMarked,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
