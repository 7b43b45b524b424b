// Package metrics exposes training-run counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "worldmodel"

// Metrics holds the collectors of one run, registered on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	EnvStepsTotal   *prometheus.CounterVec
	EpisodesTotal   *prometheus.CounterVec
	ResetsTotal     *prometheus.CounterVec
	TrainStepsTotal *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	Phase           *prometheus.GaugeVec

	ReplaySteps prometheus.Gauge
	EvalReturn  prometheus.Gauge
	Scalars     *prometheus.GaugeVec
}

// New creates and registers every collector.
//
// Metrics:
//   - worldmodel_run_env_steps_total{phase} - driver steps taken
//   - worldmodel_run_episodes_total{phase} - episodes flushed to replay
//   - worldmodel_run_resets_total{phase} - batch resets
//   - worldmodel_run_train_steps_total{phase,result} - agent train calls (update, skip, gated)
//   - worldmodel_run_env_step_duration_seconds{phase} - driver step latency
//   - worldmodel_run_phase{phase} - 1 for the active phase
//   - worldmodel_replay_steps - batched steps held by the replay buffer
//   - worldmodel_eval_return - mean return of the last evaluation
//   - worldmodel_train_scalar{key} - last logged training scalars
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		EnvStepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "env_steps_total",
				Help:      "Total number of driver steps",
			},
			[]string{"phase"},
		),

		EpisodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "episodes_total",
				Help:      "Total number of episodes flushed to the replay buffer",
			},
			[]string{"phase"},
		),

		ResetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "resets_total",
				Help:      "Total number of environment batch resets",
			},
			[]string{"phase"},
		),

		TrainStepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "train_steps_total",
				Help:      "Total number of agent train calls by result",
			},
			[]string{"phase", "result"},
		),

		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "env_step_duration_seconds",
				Help:      "Duration of one driver step in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"phase"},
		),

		Phase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "phase",
				Help:      "Active run phase (1=active)",
			},
			[]string{"phase"},
		),

		ReplaySteps: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "replay",
				Name:      "steps",
				Help:      "Batched steps held by the replay buffer",
			},
		),

		EvalReturn: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "eval",
				Name:      "return",
				Help:      "Mean episode return of the last evaluation",
			},
		),

		Scalars: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "train",
				Name:      "scalar",
				Help:      "Last logged value of each training scalar",
			},
			[]string{"key"},
		),
	}
}

// SetPhase marks phase active and every other phase inactive.
func (m *Metrics) SetPhase(phase string) {
	if m == nil {
		return
	}
	m.Phase.Reset()
	m.Phase.WithLabelValues(phase).Set(1)
}
