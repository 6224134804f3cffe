// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification outcomes.
const (
	OutcomeMatch       = "match"
	OutcomeMismatch    = "mismatch"
	OutcomeNoReference = "no_reference"
	OutcomeFetchError  = "fetch_error"
	OutcomeServiceErr  = "comparison_error"
	OutcomeBadFrame    = "invalid_frame"
)

var (
	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facekiosk",
		Name:      "verifications_total",
		Help:      "Face verification attempts by outcome.",
	}, []string{"outcome"})

	verifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facekiosk",
		Name:      "verification_duration_seconds",
		Help:      "Time spent fetching the reference and waiting for the comparator.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})

	attendanceRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facekiosk",
		Name:      "attendance_recorded_total",
		Help:      "Attendance records appended by method.",
	}, []string{"method"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facekiosk",
		Name:      "kiosk_sessions_active",
		Help:      "Open kiosk verification sessions.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facekiosk",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "method", "code"})
)

// ObserveVerification records one gateway call.
func ObserveVerification(outcome string, took time.Duration) {
	verifications.WithLabelValues(outcome).Inc()
	verifyDuration.Observe(took.Seconds())
}

// AttendanceRecorded counts a ledger append.
func AttendanceRecorded(method string) {
	attendanceRecorded.WithLabelValues(method).Inc()
}

// SessionOpened and SessionClosed track the active session gauge.
func SessionOpened() { activeSessions.Inc() }

func SessionClosed() { activeSessions.Dec() }

// HTTPRequest counts a served request.
func HTTPRequest(route, method, code string) {
	httpRequests.WithLabelValues(route, method, code).Inc()
}
