// Package metrics exposes the Prometheus counters and gauges named in
// spec.md §4.2 ("the orchestrator maintains counters per tier") plus the
// job-queue and CAPTCHA gauges needed to operate the system.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector this service registers.
type Metrics struct {
	TierAttempts     *prometheus.CounterVec
	TierSuccesses    *prometheus.CounterVec
	TierEscalations  *prometheus.CounterVec
	TierDuration     *prometheus.HistogramVec

	JobsEnqueued   prometheus.Counter
	JobsInFlight   prometheus.Gauge
	JobsCompleted  *prometheus.CounterVec
	JobDuration    prometheus.Histogram

	CaptchaTasksOpen   *prometheus.GaugeVec
	CaptchaTasksTotal  *prometheus.CounterVec
	HITLSessionsActive prometheus.Gauge
}

// New builds and returns a Metrics bundle. Callers register it against a
// *prometheus.Registry of their choosing via Register.
func New() *Metrics {
	return &Metrics{
		TierAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "titan_tier_attempts_total",
				Help: "Total tier execution attempts, by tier level.",
			},
			[]string{"tier"},
		),
		TierSuccesses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "titan_tier_successes_total",
				Help: "Total successful tier executions, by tier level.",
			},
			[]string{"tier"},
		),
		TierEscalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "titan_tier_escalations_total",
				Help: "Total escalations from one tier to the next, by source tier.",
			},
			[]string{"from_tier"},
		),
		TierDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "titan_tier_duration_seconds",
				Help:    "Tier execution duration in seconds, by tier level.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tier"},
		),
		JobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "titan_jobs_enqueued_total",
			Help: "Total fetch jobs enqueued.",
		}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "titan_jobs_in_flight",
			Help: "Fetch jobs currently being processed by a worker.",
		}),
		JobsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "titan_jobs_completed_total",
				Help: "Total fetch jobs that reached a terminal state, by outcome.",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "titan_job_duration_seconds",
			Help:    "End-to-end fetch job duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		CaptchaTasksOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "titan_captcha_tasks_open",
				Help: "Non-terminal CAPTCHA tasks, by status.",
			},
			[]string{"status"},
		),
		CaptchaTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "titan_captcha_tasks_total",
				Help: "Total CAPTCHA tasks created, by terminal outcome.",
			},
			[]string{"outcome"},
		),
		HITLSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "titan_hitl_sessions_active",
			Help: "HITL sessions currently awaiting an admin or a solve.",
		}),
	}
}

// Register adds every collector to reg — typically prometheus.DefaultRegisterer
// so promhttp.Handler()'s default /metrics surface picks them up, or a
// fresh *prometheus.Registry in tests that want isolation.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.TierAttempts, m.TierSuccesses, m.TierEscalations, m.TierDuration,
		m.JobsEnqueued, m.JobsInFlight, m.JobsCompleted, m.JobDuration,
		m.CaptchaTasksOpen, m.CaptchaTasksTotal, m.HITLSessionsActive,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
