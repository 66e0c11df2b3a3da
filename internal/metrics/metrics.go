// Package metrics provides Prometheus instrumentation for the Shikra engine.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/shikra/internal/domain"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shikra",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shikra",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AssessmentsTotal counts completed risk assessments by outcome.
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shikra",
			Name:      "assessments_total",
			Help:      "Total risk assessments by risk level and action.",
		},
		[]string{"risk_level", "action"},
	)

	// AssessmentDuration observes end-to-end scoring latency.
	AssessmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shikra",
		Name:      "assessment_duration_seconds",
		Help:      "Time to score one transaction in seconds.",
		Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	// RiskScore observes the distribution of composite risk scores.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shikra",
		Name:      "risk_score",
		Help:      "Distribution of composite risk scores.",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// AlertsTotal counts raised alerts by action.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shikra",
			Name:      "alerts_total",
			Help:      "Total fraud alerts raised by action.",
		},
		[]string{"action"},
	)

	// ScreenHitsTotal counts screening rule hits by rule ID.
	ScreenHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shikra",
			Name:      "screen_hits_total",
			Help:      "Total screening rule matches by rule.",
		},
		[]string{"rule_id"},
	)

	// ValidationErrorsTotal counts rejected transaction inputs.
	ValidationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shikra",
		Name:      "validation_errors_total",
		Help:      "Total transactions rejected by input validation.",
	})

	// UsersTracked reports the number of users with a live risk profile.
	UsersTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shikra",
		Name:      "users_tracked",
		Help:      "Number of users with an in-memory risk profile.",
	})

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shikra",
		Name:      "goroutines",
		Help:      "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AssessmentsTotal,
		AssessmentDuration,
		RiskScore,
		AlertsTotal,
		ScreenHitsTotal,
		ValidationErrorsTotal,
		UsersTracked,
		GoroutineCount,
	)
}

// ObserveAssessment records the outcome metrics of one completed assessment.
func ObserveAssessment(a *domain.RiskAssessment, elapsed time.Duration) {
	AssessmentsTotal.WithLabelValues(string(a.RiskLevel), string(a.Action)).Inc()
	AssessmentDuration.Observe(elapsed.Seconds())
	RiskScore.Observe(float64(a.RiskScore))
	for _, hit := range a.ScreenHits {
		ScreenHitsTotal.WithLabelValues(hit.RuleID).Inc()
	}
}

// Collect samples runtime gauges. Call periodically from a goroutine.
func Collect(usersTracked int) {
	UsersTracked.Set(float64(usersTracked))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// Middleware records request count and latency per chi route pattern.
// Uses the route pattern, not the raw path, to bound label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, statusBucket(ww.Status())).Inc()
	})
}

// Handler returns the Prometheus scrape handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
