package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/zoobzio/relayz"
)

const (
	namespace = "relayz"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Observable is implemented by every relayz.Pipeline regardless of payload
// type.
type Observable interface {
	OnStageComplete(handler func(context.Context, relayz.PipelineEvent) error) error
	OnShortCircuit(handler func(context.Context, relayz.PipelineEvent) error) error
	OnComplete(handler func(context.Context, relayz.PipelineEvent) error) error
}

// Registry holds the Prometheus instruments fed by pipeline events.
type Registry struct {
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	StagesTotal   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	ShortCircuits *prometheus.CounterVec
}

// NewRegistry creates the instruments and registers them with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by outcome",
			},
			[]string{"pipeline", "outcome"},
		),

		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Time spent running a pipeline from its first stage to its return",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline"},
		),

		StagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "completed_total",
				Help:      "Total number of stage returns by outcome",
			},
			[]string{"pipeline", "stage", "outcome"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Time spent in a stage, including the rest of the chain it called",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline", "stage"},
		),

		ShortCircuits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "short_circuits_total",
				Help:      "Total number of stages that returned without calling next",
			},
			[]string{"pipeline", "stage"},
		),
	}
}

// Observe subscribes to the events of p. Handlers run asynchronously, so
// instruments catch up shortly after a run returns.
func (r *Registry) Observe(p Observable) error {
	if err := p.OnStageComplete(r.stageComplete); err != nil {
		return err
	}
	if err := p.OnShortCircuit(r.shortCircuit); err != nil {
		return err
	}
	return p.OnComplete(r.complete)
}

func (r *Registry) stageComplete(_ context.Context, e relayz.PipelineEvent) error {
	r.StagesTotal.WithLabelValues(e.Name, e.Stage, outcome(e)).Inc()
	r.StageDuration.WithLabelValues(e.Name, e.Stage).Observe(e.Duration.Seconds())
	return nil
}

func (r *Registry) shortCircuit(_ context.Context, e relayz.PipelineEvent) error {
	r.ShortCircuits.WithLabelValues(e.Name, e.Stage).Inc()
	return nil
}

func (r *Registry) complete(_ context.Context, e relayz.PipelineEvent) error {
	r.RunsTotal.WithLabelValues(e.Name, outcome(e)).Inc()
	r.RunDuration.WithLabelValues(e.Name).Observe(e.Duration.Seconds())
	return nil
}

// Runs returns how many runs of pipeline have been recorded, whatever their
// outcome.
func (r *Registry) Runs(pipeline string) float64 {
	var total float64
	for _, o := range []string{outcomeSuccess, outcomeFailure} {
		var m dto.Metric
		if err := r.RunsTotal.WithLabelValues(pipeline, o).Write(&m); err != nil {
			continue
		}
		total += m.GetCounter().GetValue()
	}
	return total
}

func outcome(e relayz.PipelineEvent) string {
	if e.Success {
		return outcomeSuccess
	}
	return outcomeFailure
}
