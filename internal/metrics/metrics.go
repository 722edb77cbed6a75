package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "geoattend"

var (
	// Submissions counts sign-in outcomes: "admitted" or a rejection reason.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Student sign-in attempts by outcome.",
	}, []string{"outcome"})

	// AdmittedByStatus counts admitted records by their status at admission time.
	AdmittedByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admitted_total",
		Help:      "Admitted sign-ins by verification status at admission.",
	}, []string{"status"})

	SheetsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sheets_created_total",
		Help:      "Attendance sheets created.",
	})

	// FingerprintFlags counts devices seen signing in more than one student on a sheet.
	FingerprintFlags = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fingerprint_flags_total",
		Help:      "Device fingerprints shared by several students on one sheet.",
	})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_events_total",
		Help:      "Queue events handled by the worker.",
	}, []string{"type", "result"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
