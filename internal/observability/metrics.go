package observability

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec

	outboxDispatched prometheus.Counter
	outboxFailed     prometheus.Counter
	outboxBacklog    prometheus.Gauge

	jobsHandled  *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobsRearmed  *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	regenHandled *prometheus.CounterVec
	alertsRaised *prometheus.CounterVec
	lockSkipped  *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("METRICS_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// Init builds the process-wide metrics once. Later calls return the same instance.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func Current() *Metrics {
	return instance
}

// New builds metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydration_api_requests_total",
			Help: "Admin API requests by route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hydration_api_request_seconds",
			Help:    "Admin API latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		outboxDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydration_outbox_dispatched_total",
			Help: "Outbox messages pushed to the queue and marked sent.",
		}),
		outboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydration_outbox_failed_total",
			Help: "Outbox messages whose enqueue or mark failed.",
		}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydration_outbox_backlog",
			Help: "Undispatched outbox messages after the last cycle.",
		}),
		jobsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydration_jobs_handled_total",
			Help: "Hydration deliveries by kind and outcome.",
		}, []string{"kind", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hydration_job_seconds",
			Help:    "Wall-clock time of a hydration run.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		jobsRearmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydration_jobs_reconciled_total",
			Help: "Reconciler decisions by action.",
		}, []string{"action"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hydration_queue_depth",
			Help: "Queue depth by queue name.",
		}, []string{"queue"}),
		regenHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydration_regen_jobs_total",
			Help: "Regeneration jobs by outcome.",
		}, []string{"outcome"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydration_alert_transitions_total",
			Help: "Alert upserts by type and transition.",
		}, []string{"type", "transition"}),
		lockSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydration_lock_skipped_total",
			Help: "Scheduled cycles skipped because the advisory lock was held elsewhere.",
		}, []string{"lock"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency,
		m.outboxDispatched, m.outboxFailed, m.outboxBacklog,
		m.jobsHandled, m.jobDuration, m.jobsRearmed, m.queueDepth,
		m.regenHandled, m.alertsRaised, m.lockSkipped,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveOutbox(dispatched, failed int, backlog int64) {
	if m == nil {
		return
	}
	m.outboxDispatched.Add(float64(dispatched))
	m.outboxFailed.Add(float64(failed))
	if backlog >= 0 {
		m.outboxBacklog.Set(float64(backlog))
	}
}

func (m *Metrics) ObserveJob(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsHandled.WithLabelValues(kind, outcome).Inc()
	if d > 0 {
		m.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) IncReconciled(action string) {
	if m == nil {
		return
	}
	m.jobsRearmed.WithLabelValues(action).Inc()
}

func (m *Metrics) SetQueueDepth(queue string, depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) IncRegen(outcome string) {
	if m == nil {
		return
	}
	m.regenHandled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAlert(alertType, transition string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(alertType, transition).Inc()
}

func (m *Metrics) IncLockSkipped(lock string) {
	if m == nil {
		return
	}
	m.lockSkipped.WithLabelValues(lock).Inc()
}

// GinMiddleware records request counts and latency by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.apiRequests.WithLabelValues(c.Request.Method, route, http.StatusText(c.Writer.Status())).Inc()
		m.apiLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logger.Logger) {
	if m == nil || strings.TrimSpace(addr) == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && log != nil {
			log.Warn("metrics server stopped", "error", err)
		}
	}()
	if log != nil {
		log.Info("metrics listening", "addr", addr)
	}
}
