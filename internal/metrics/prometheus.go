package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mockmate_ws_active_connections",
			Help: "Number of open interview websocket connections",
		},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockmate_ws_events_total",
			Help: "Inbound interview events by type and outcome",
		},
		[]string{"event", "outcome"},
	)

	TranscriptionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mockmate_transcription_duration_seconds",
			Help:    "Transcription call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"status"},
	)

	SpeechSynthesisFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mockmate_speech_synthesis_failures_total",
			Help: "Speech synthesis calls that failed and fell back to text only",
		},
	)

	FollowupsAsked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mockmate_followups_asked_total",
			Help: "Follow-up questions emitted to candidates",
		},
	)

	SessionFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockmate_session_store_fallbacks_total",
			Help: "Session store operations served by the in-process fallback",
		},
		[]string{"operation"},
	)

	SessionFallbackEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mockmate_session_fallback_entries",
			Help: "Sessions currently held in the in-process fallback",
		},
	)

	InterviewsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mockmate_interviews_completed_total",
			Help: "Interviews that reached the completed state",
		},
	)

	EvaluationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockmate_evaluation_runs_total",
			Help: "Background evaluation runs by outcome",
		},
		[]string{"outcome"},
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mockmate_evaluation_duration_seconds",
			Help:    "Background evaluation run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	BackgroundJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockmate_background_jobs_total",
			Help: "Background jobs by name and outcome",
		},
		[]string{"job", "outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mockmate_circuit_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(ActiveConnections)
		prometheus.MustRegister(EventsTotal)
		prometheus.MustRegister(TranscriptionDuration)
		prometheus.MustRegister(SpeechSynthesisFailures)
		prometheus.MustRegister(FollowupsAsked)
		prometheus.MustRegister(SessionFallbacks)
		prometheus.MustRegister(SessionFallbackEntries)
		prometheus.MustRegister(InterviewsCompleted)
		prometheus.MustRegister(EvaluationRuns)
		prometheus.MustRegister(EvaluationDuration)
		prometheus.MustRegister(BackgroundJobs)
		prometheus.MustRegister(CircuitBreakerState)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
