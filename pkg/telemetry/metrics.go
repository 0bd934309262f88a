package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the Starlance mission engine.
type Metrics struct {
	config MetricsConfig

	// Trigger metrics
	triggersEvaluated *prometheus.CounterVec
	eligibleTemplates *prometheus.HistogramVec

	// Admission metrics
	spawnDraws        *prometheus.CounterVec
	missionsCreated   *prometheus.CounterVec
	missionsAccepted  prometheus.Counter
	missionsFinished  *prometheus.CounterVec
	entryPointDuration *prometheus.HistogramVec

	// Persistence metrics
	missionsSaved      prometheus.Counter
	missionsRestored   prometheus.Counter
	missionsFailedLoad prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	liveMissions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		triggersEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_evaluated_total",
				Help:      "Total number of trigger evaluations",
			},
			[]string{"location"},
		),
		eligibleTemplates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "eligible_templates",
				Help:      "Number of templates eligible per trigger",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"location"},
		),
		spawnDraws: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spawn_draws_total",
				Help:      "Total number of admission coin flips",
			},
			[]string{"result"},
		),
		missionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missions_created_total",
				Help:      "Total number of mission instances created",
			},
			[]string{"outcome"},
		),
		missionsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missions_accepted_total",
				Help:      "Total number of missions accepted by the player",
			},
		),
		missionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missions_finished_total",
				Help:      "Total number of missions finished",
			},
			[]string{"reason"},
		),
		entryPointDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "entry_point_duration_seconds",
				Help:      "Duration of scripting entry-point runs in seconds",
				Buckets:   buckets,
			},
			[]string{"entry"},
		),
		missionsSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missions_saved_total",
				Help:      "Total number of missions written to a save",
			},
		),
		missionsRestored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missions_restored_total",
				Help:      "Total number of missions restored from a save",
			},
		),
		missionsFailedLoad: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "missions_failed_load_total",
				Help:      "Total number of missions dropped during save load",
			},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by classification",
			},
			[]string{"class"},
		),
		liveMissions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_missions",
				Help:      "Number of missions currently on the live list",
			},
		),
	}

	// Register all metrics
	collectors := []prometheus.Collector{
		m.triggersEvaluated,
		m.eligibleTemplates,
		m.spawnDraws,
		m.missionsCreated,
		m.missionsAccepted,
		m.missionsFinished,
		m.entryPointDuration,
		m.missionsSaved,
		m.missionsRestored,
		m.missionsFailedLoad,
		m.errorsByClass,
		m.liveMissions,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// RecordTrigger records a trigger evaluation and its eligible-set size.
func (m *Metrics) RecordTrigger(location string, eligible int) {
	if m.registry == nil {
		return
	}
	m.triggersEvaluated.WithLabelValues(location).Inc()
	m.eligibleTemplates.WithLabelValues(location).Observe(float64(eligible))
}

// RecordSpawnDraw records one admission coin flip.
func (m *Metrics) RecordSpawnDraw(accepted bool) {
	if m.registry == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.spawnDraws.WithLabelValues(result).Inc()
}

// RecordMissionCreated records a mission instantiation with its creation outcome.
func (m *Metrics) RecordMissionCreated(outcome string) {
	if m.registry == nil {
		return
	}
	m.missionsCreated.WithLabelValues(outcome).Inc()
}

// RecordMissionAccepted records a player acceptance.
func (m *Metrics) RecordMissionAccepted() {
	if m.registry == nil {
		return
	}
	m.missionsAccepted.Inc()
}

// RecordMissionFinished records a mission finish with its reason.
func (m *Metrics) RecordMissionFinished(reason string) {
	if m.registry == nil {
		return
	}
	m.missionsFinished.WithLabelValues(reason).Inc()
}

// RecordEntryPoint records the duration of a scripting entry-point run.
func (m *Metrics) RecordEntryPoint(entry string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.entryPointDuration.WithLabelValues(entry).Observe(duration.Seconds())
}

// RecordSave records missions written to a save.
func (m *Metrics) RecordSave(missions int) {
	if m.registry == nil {
		return
	}
	m.missionsSaved.Add(float64(missions))
}

// RecordRestore records a mission restored from a save.
func (m *Metrics) RecordRestore() {
	if m.registry == nil {
		return
	}
	m.missionsRestored.Inc()
}

// RecordFailedLoad records a mission dropped during save load.
func (m *Metrics) RecordFailedLoad() {
	if m.registry == nil {
		return
	}
	m.missionsFailedLoad.Inc()
}

// RecordError records an error by classification.
func (m *Metrics) RecordError(class string) {
	if m.registry == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// SetLiveMissions updates the live mission gauge.
func (m *Metrics) SetLiveMissions(n int) {
	if m.registry == nil {
		return
	}
	m.liveMissions.Set(float64(n))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server in a background goroutine.
func (m *Metrics) StartServer() error {
	if m.registry == nil {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	go func() {
		// Errors here are not recoverable by the caller.
		_ = http.ListenAndServe(m.config.ListenAddress, mux)
	}()

	return nil
}
