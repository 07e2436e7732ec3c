package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	ThrottleSignals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_throttle_signals_total",
			Help: "Total sends rejected by remote rate limiting",
		},
	)

	EffectiveConcurrency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_effective_concurrency",
			Help: "Current effective worker concurrency",
		},
	)

	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_send_duration_seconds",
			Help:    "Latency of individual send attempts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EmailsSent,
			EmailFailures,
			ThrottleSignals,
			EffectiveConcurrency,
			SendDuration,
		)
	})
}
