package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	core "github.com/griffin-open-source/griffin-sub001/internal/app/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hub",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.56s
		},
		[]string{"method", "path"},
	)

	schedulerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks, grouped by whether it was skipped as overlapping.",
		},
		[]string{"result"},
	)

	schedulerPlansEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "scheduler",
			Name:      "plans_enqueued_total",
			Help:      "Total number of runs enqueued by the scheduler, grouped by location.",
		},
		[]string{"location"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hub",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Approximate number of eligible jobs per location and status.",
		},
		[]string{"location", "status"},
	)

	jobOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "worker",
			Name:      "job_outcomes_total",
			Help:      "Total number of jobs processed by a worker, grouped by outcome.",
		},
		[]string{"location", "outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hub",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Duration of a worker's full job-processing cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"location"},
	)

	secretResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "secrets",
			Name:      "resolutions_total",
			Help:      "Total secret resolutions attempted, grouped by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	agentHeartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hub",
			Subsystem: "agents",
			Name:      "heartbeats_total",
			Help:      "Total heartbeat calls received, grouped by location.",
		},
		[]string{"location"},
	)

	agentsOnline = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hub",
			Subsystem: "agents",
			Name:      "online",
			Help:      "Currently online agents per location.",
		},
		[]string{"location"},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		schedulerTicks,
		schedulerPlansEnqueued,
		queueDepth,
		jobOutcomes,
		jobDuration,
		secretResolutions,
		agentHeartbeats,
		agentsOnline,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSchedulerTick records whether a tick ran or was skipped for overlapping with a prior tick.
func RecordSchedulerTick(skipped bool) {
	result := "ran"
	if skipped {
		result = "skipped_overlap"
	}
	schedulerTicks.WithLabelValues(result).Inc()
}

// RecordPlanEnqueued records a scheduler-driven run enqueue for a location.
func RecordPlanEnqueued(location string) {
	schedulerPlansEnqueued.WithLabelValues(normalizeLabel(location)).Inc()
}

// SetQueueDepth publishes the current approximate depth for a (location, status) pair.
func SetQueueDepth(location, status string, depth int) {
	queueDepth.WithLabelValues(normalizeLabel(location), normalizeLabel(status)).Set(float64(depth))
}

// RecordJobOutcome records a worker's terminal decision for one dequeued job.
func RecordJobOutcome(location, outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobOutcomes.WithLabelValues(normalizeLabel(location), normalizeLabel(outcome)).Inc()
	jobDuration.WithLabelValues(normalizeLabel(location)).Observe(duration.Seconds())
}

// RecordSecretResolution records a single secret resolution attempt outcome.
func RecordSecretResolution(provider, outcome string) {
	secretResolutions.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// RecordAgentHeartbeat records a received heartbeat for a location.
func RecordAgentHeartbeat(location string) {
	agentHeartbeats.WithLabelValues(normalizeLabel(location)).Inc()
}

// SetAgentsOnline publishes the current online-agent gauge for a location.
func SetAgentsOnline(location string, count int) {
	agentsOnline.WithLabelValues(normalizeLabel(location)).Set(float64(count))
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus metrics.
// It is the generic building block behind the domain-specific *Hooks helpers below.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["plan_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["run_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["location"]; ok && id != "" {
		return id
	}
	return "unknown"
}

// ExecutionEngineHooks captures per-run execution timing for the engine.
func ExecutionEngineHooks() core.ObservationHooks {
	return ObservationHooks("hub", "engine", "runs")
}

// ReconcileApplyHooks captures reconciler apply-action timing.
func ReconcileApplyHooks() core.ObservationHooks {
	return ObservationHooks("hub", "reconcile", "apply")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters so that /plan/abc123 and /runs/xyz
// report under a single low-cardinality series instead of one per id.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "plan":
		if len(parts) == 1 {
			return "/plan"
		}
		if len(parts) >= 2 && parts[1] == "by-name" {
			return "/plan/by-name"
		}
		return "/plan/:id"
	case "runs":
		if len(parts) == 1 {
			return "/runs"
		}
		if len(parts) >= 2 && parts[1] == "trigger-by-plan-id" {
			return "/runs/trigger-by-plan-id/:planId"
		}
		return "/runs/:id"
	case "agents":
		if len(parts) == 1 {
			return "/agents"
		}
		if len(parts) >= 2 && parts[1] == "locations" {
			return "/agents/locations"
		}
		if len(parts) >= 3 && parts[2] == "heartbeat" {
			return "/agents/:id/heartbeat"
		}
		return "/agents/:id"
	case "config":
		return "/config/:organizationId/:environment/targets/:targetKey"
	default:
		return "/" + parts[0]
	}
}
