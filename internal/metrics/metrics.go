package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lafal"

// HTTP metrics (incremented by middleware).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

// Evaluation pipeline metrics.
var (
	EvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluations_total",
		Help:      "Pronunciation evaluations by outcome.",
	}, []string{"outcome"})

	EvaluationScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_score",
		Help:      "Aggregate pronunciation score of successful evaluations.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	AudioDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "audio_duration_seconds",
		Help:      "Length of normalized recordings.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	TranscriptionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcription_duration_seconds",
		Help:      "Latency of speech recognition requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "status"})

	WebsocketSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_sessions",
		Help:      "Currently connected websocket capture sessions.",
	})

	AttemptsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_pruned_total",
		Help:      "Attempts deleted by history retention.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EvaluationsTotal,
		EvaluationScore,
		AudioDuration,
		TranscriptionDuration,
		WebsocketSessions,
		AttemptsPruned,
	)
}

// Middleware records HTTP request metrics.
// It uses echo's route pattern as the path label to avoid cardinality explosion.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			pattern := c.Path()
			if pattern == "" {
				pattern = "unknown"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)

			HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
			HTTPRequestDuration.WithLabelValues(method, pattern).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
