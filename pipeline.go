package relayz

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Pipeline.
const (
	// Metrics.
	PipelineRunsTotal          = metricz.Key("pipeline.runs.total")
	PipelineSuccessesTotal     = metricz.Key("pipeline.successes.total")
	PipelineFailuresTotal      = metricz.Key("pipeline.failures.total")
	PipelineStagesInvoked      = metricz.Key("pipeline.stages.invoked")
	PipelineShortCircuitsTotal = metricz.Key("pipeline.short_circuits.total")
	PipelineResolutionFailures = metricz.Key("pipeline.resolution_failures.total")
	PipelineEventsDropped      = metricz.Key("pipeline.events.dropped.total")
	PipelineStagesTotal        = metricz.Key("pipeline.stages.total")
	PipelineDurationMs         = metricz.Key("pipeline.duration.ms")

	// Spans.
	PipelineThenSpan  = tracez.Key("pipeline.then")
	PipelineStageSpan = tracez.Key("pipeline.stage")

	// Tags.
	PipelineTagRunID        = tracez.Tag("pipeline.run_id")
	PipelineTagStageCount   = tracez.Tag("pipeline.stage_count")
	PipelineTagMethod       = tracez.Tag("pipeline.method")
	PipelineTagStageIndex   = tracez.Tag("pipeline.stage_index")
	PipelineTagStageName    = tracez.Tag("pipeline.stage_name")
	PipelineTagStageKind    = tracez.Tag("pipeline.stage_kind")
	PipelineTagShortCircuit = tracez.Tag("pipeline.short_circuit")
	PipelineTagSuccess      = tracez.Tag("pipeline.success")
	PipelineTagError        = tracez.Tag("pipeline.error")

	// Hook event keys.
	PipelineEventStageComplete = hookz.Key("pipeline.stage_complete")
	PipelineEventShortCircuit  = hookz.Key("pipeline.short_circuit")
	PipelineEventComplete      = hookz.Key("pipeline.complete")
)

// Hook delivery limits. Every stage emits at least one event per run, so the
// queue is sized for long chains and spills into an overflow buffer drained
// in the background. Events beyond both are counted as dropped.
const (
	pipelineHookQueueSize  = 1024
	pipelineHookOverflow   = 8192
	pipelineHookDrainEvery = 5 * time.Millisecond
)

// PipelineEvent is emitted via hookz as stages return and when a run ends.
type PipelineEvent struct {
	Timestamp    time.Time     // When the event occurred
	Error        error         // Error returned by the stage or run, if any
	Name         Name          // Pipeline name
	RunID        string        // Unique ID of the Then call
	Stage        Name          // Stage name (empty for pipeline.complete)
	Method       string        // Invocation method in effect
	Duration     time.Duration // Time spent in the stage, including the rest of the chain it called
	StageIndex   int           // Zero-based position of the stage
	TotalStages  int           // Number of stages in the run
	Success      bool          // Whether the stage or run returned without error
	ShortCircuit bool          // Whether the stage returned without calling next
}

// Pipeline threads a payload through an ordered list of stages and a
// destination. Each stage receives the payload and a Next continuation for the
// rest of the chain; it decides whether to call it, with what payload, and
// what to return.
//
// Stages are folded right-to-left around the destination so the first stage
// listed is the outermost layer and runs first. Each stage is resolved only
// when the chain reaches it, so a stage that does not call next keeps every
// later stage from being looked up or run.
//
//	result, err := relayz.New[string]("greeting", registry).
//	    Send("  hello ").
//	    Through(
//	        relayz.Ref[string]("trim"),
//	        relayz.Ref[string]("suffix:!"),
//	        relayz.Func("shout", func(ctx context.Context, s string, next relayz.Next[string]) (string, error) {
//	            return next(ctx, strings.ToUpper(s))
//	        }),
//	    ).
//	    Then(ctx, func(_ context.Context, s string) (string, error) {
//	        return s, nil
//	    })
//	// result: "HELLO!"
//
// The configuration methods are safe to call concurrently with Then; every
// Then works on a snapshot taken when it starts.
//
// # Observability
//
// Metrics:
//   - pipeline.runs.total: Counter of Then calls
//   - pipeline.successes.total / pipeline.failures.total: Counters of outcomes
//   - pipeline.stages.invoked: Counter of stage invocations
//   - pipeline.short_circuits.total: Counter of stages that did not call next
//   - pipeline.resolution_failures.total: Counter of unresolvable stages
//   - pipeline.events.dropped.total: Counter of events hooks could not accept
//   - pipeline.stages.total: Gauge of stages in the last run
//   - pipeline.duration.ms: Gauge of the last run's duration
//
// Traces:
//   - pipeline.then: Parent span for a run
//   - pipeline.stage: Span per stage, nested the way the stages nest
//
// Events (via hooks):
//   - pipeline.stage_complete: Fired when a stage returns
//   - pipeline.short_circuit: Fired when a stage returns without calling next
//   - pipeline.complete: Fired when a run ends
type Pipeline[T any] struct {
	payload  T
	locator  Locator
	carry    CarryFunc[T]
	clock    clockz.Clock
	metrics  *metricz.Registry
	tracer   *tracez.Tracer
	hooks    *hookz.Hooks[PipelineEvent]
	name     Name
	method   string
	pipes    []Pipe[T]
	mu       sync.RWMutex
	recovery bool
}

// New creates a Pipeline. The locator resolves Ref pipes and may be nil when
// only Func and Object pipes are used.
func New[T any](name Name, locator Locator) *Pipeline[T] {
	metrics := metricz.New()
	metrics.Counter(PipelineRunsTotal)
	metrics.Counter(PipelineSuccessesTotal)
	metrics.Counter(PipelineFailuresTotal)
	metrics.Counter(PipelineStagesInvoked)
	metrics.Counter(PipelineShortCircuitsTotal)
	metrics.Counter(PipelineResolutionFailures)
	metrics.Counter(PipelineEventsDropped)
	metrics.Gauge(PipelineStagesTotal)
	metrics.Gauge(PipelineDurationMs)

	hooks := hookz.New[PipelineEvent](
		hookz.WithQueueSize(pipelineHookQueueSize),
		hookz.WithOverflow(hookz.OverflowConfig{
			Capacity:         pipelineHookOverflow,
			DrainInterval:    pipelineHookDrainEvery,
			EvictionStrategy: "reject",
		}),
	)

	return &Pipeline[T]{
		name:    name,
		locator: locator,
		method:  MethodHandle,
		carry:   identityCarry[T],
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hooks,
	}
}

// Send sets the payload for the next Then.
func (p *Pipeline[T]) Send(payload T) *Pipeline[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payload = payload
	return p
}

// Through replaces the stage list. Stages run in the order given; pass a
// slice with pipes... to use a list built elsewhere.
func (p *Pipeline[T]) Through(pipes ...Pipe[T]) *Pipeline[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pipes = slices.Clone(pipes)
	return p
}

// Pipe appends stages to the current list.
func (p *Pipeline[T]) Pipe(pipes ...Pipe[T]) *Pipeline[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pipes = append(p.pipes, pipes...)
	return p
}

// Via sets the invocation method used on stage objects. An empty method
// restores the default, "handle".
func (p *Pipeline[T]) Via(method string) *Pipeline[T] {
	if method == "" {
		method = MethodHandle
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.method = method
	return p
}

// WithCarry sets the function applied to every value a stage returns. The
// destination's return value is not carried. A nil carry restores the
// identity.
//
//	// Clamp every intermediate score.
//	scoring := relayz.New[int]("scoring", nil).WithCarry(func(_ context.Context, n int) int {
//	    return min(n, 100)
//	})
func (p *Pipeline[T]) WithCarry(carry CarryFunc[T]) *Pipeline[T] {
	if carry == nil {
		carry = identityCarry[T]
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.carry = carry
	return p
}

// WithClock sets a custom clock for testing.
func (p *Pipeline[T]) WithClock(clock clockz.Clock) *Pipeline[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
	return p
}

// WithRecovery makes the pipeline convert a stage panic into a *PanicError
// returned through the chain. Without it panics propagate to the caller.
func (p *Pipeline[T]) WithRecovery() *Pipeline[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recovery = true
	return p
}

// run is the configuration captured by one Then call.
type run[T any] struct {
	payload  T
	carry    CarryFunc[T]
	clock    clockz.Clock
	id       string
	method   string
	pipes    []Pipe[T]
	recovery bool
}

func (p *Pipeline[T]) snapshot() *run[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &run[T]{
		id:       uuid.New().String(),
		payload:  p.payload,
		pipes:    slices.Clone(p.pipes),
		method:   p.method,
		carry:    p.carry,
		clock:    p.getClock(),
		recovery: p.recovery,
	}
}

// Then composes the stages around destination and runs the chain with the
// current payload. A nil destination returns the payload it receives.
//
// Errors returned by stages and by the destination reach the caller
// unchanged. A stage that cannot be resolved fails with a
// *StageResolutionError at the point it would have run.
func (p *Pipeline[T]) Then(ctx context.Context, destination Destination[T]) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if destination == nil {
		destination = identityDestination[T]
	}

	r := p.snapshot()

	p.metrics.Counter(PipelineRunsTotal).Inc()
	p.metrics.Gauge(PipelineStagesTotal).Set(float64(len(r.pipes)))
	start := r.clock.Now()

	ctx, span := p.tracer.StartSpan(ctx, PipelineThenSpan)
	span.SetTag(PipelineTagRunID, r.id)
	span.SetTag(PipelineTagStageCount, fmt.Sprintf("%d", len(r.pipes)))
	span.SetTag(PipelineTagMethod, r.method)

	result, err := p.compose(r, destination)(ctx, r.payload)

	elapsed := r.clock.Since(start)
	p.metrics.Gauge(PipelineDurationMs).Set(float64(elapsed.Milliseconds()))
	if err == nil {
		span.SetTag(PipelineTagSuccess, "true")
		p.metrics.Counter(PipelineSuccessesTotal).Inc()
	} else {
		span.SetTag(PipelineTagSuccess, "false")
		span.SetTag(PipelineTagError, err.Error())
		p.metrics.Counter(PipelineFailuresTotal).Inc()
	}
	span.Finish()

	p.emit(ctx, PipelineEventComplete, PipelineEvent{
		Name:        p.name,
		RunID:       r.id,
		Method:      r.method,
		TotalStages: len(r.pipes),
		Success:     err == nil,
		Error:       err,
		Duration:    elapsed,
		Timestamp:   r.clock.Now(),
	})

	return result, err
}

// ThenReturn runs the chain with a destination that returns the payload it
// receives.
func (p *Pipeline[T]) ThenReturn(ctx context.Context) (T, error) {
	return p.Then(ctx, identityDestination[T])
}

// compose folds the stages right-to-left around the destination. The
// destination is the innermost continuation; the first stage is the outermost.
func (p *Pipeline[T]) compose(r *run[T], destination Destination[T]) Next[T] {
	stack := Next[T](destination)
	for i := len(r.pipes) - 1; i >= 0; i-- {
		stack = p.layer(r, i, stack)
	}
	return stack
}

// layer builds the continuation for the stage at index. The stage is resolved
// only when the continuation is called.
func (p *Pipeline[T]) layer(r *run[T], index int, next Next[T]) Next[T] {
	pipe := r.pipes[index]

	return func(ctx context.Context, payload T) (T, error) {
		stageCtx, span := p.tracer.StartSpan(ctx, PipelineStageSpan)
		span.SetTag(PipelineTagRunID, r.id)
		span.SetTag(PipelineTagStageIndex, fmt.Sprintf("%d", index))
		span.SetTag(PipelineTagStageName, pipe.Name())
		span.SetTag(PipelineTagStageKind, pipe.kind.String())
		start := r.clock.Now()

		invoke, err := resolve(stageCtx, p.locator, pipe, r.method)
		if err != nil {
			p.metrics.Counter(PipelineResolutionFailures).Inc()
			err = &StageResolutionError{
				Pipeline: p.name,
				Stage:    pipe.Name(),
				Ref:      pipe.ref,
				Method:   r.method,
				Index:    index,
				Err:      err,
			}
			span.SetTag(PipelineTagSuccess, "false")
			span.SetTag(PipelineTagError, err.Error())
			span.Finish()
			p.emitStage(stageCtx, r, pipe, index, err, false, r.clock.Since(start))
			return payload, err
		}

		// Stages such as Timeout may call next from another goroutine.
		var called atomic.Bool
		proceed := func(ctx context.Context, payload T) (T, error) {
			called.Store(true)
			return next(ctx, payload)
		}

		p.metrics.Counter(PipelineStagesInvoked).Inc()
		result, err := p.invoke(stageCtx, r, pipe, index, invoke, payload, proceed)
		if err == nil {
			result = r.carry(stageCtx, result)
		}
		duration := r.clock.Since(start)

		shortCircuit := !called.Load() && err == nil
		span.SetTag(PipelineTagShortCircuit, fmt.Sprintf("%t", shortCircuit))
		if err == nil {
			span.SetTag(PipelineTagSuccess, "true")
		} else {
			span.SetTag(PipelineTagSuccess, "false")
			span.SetTag(PipelineTagError, err.Error())
		}
		span.Finish()

		p.emitStage(stageCtx, r, pipe, index, err, shortCircuit, duration)
		if shortCircuit {
			p.metrics.Counter(PipelineShortCircuitsTotal).Inc()
			p.emit(stageCtx, PipelineEventShortCircuit, p.stageEvent(r, pipe, index, nil, true, duration))
		}

		return result, err
	}
}

// invoke calls a resolved stage, converting a panic into a *PanicError when
// recovery is enabled.
func (p *Pipeline[T]) invoke(ctx context.Context, r *run[T], pipe Pipe[T], index int, call invocation[T], payload T, next Next[T]) (result T, err error) {
	if r.recovery {
		defer recoverStage(&result, &err, payload, p.name, pipe.Name(), index)
	}
	return call(ctx, payload, next)
}

func (p *Pipeline[T]) emitStage(ctx context.Context, r *run[T], pipe Pipe[T], index int, err error, shortCircuit bool, duration time.Duration) {
	p.emit(ctx, PipelineEventStageComplete, p.stageEvent(r, pipe, index, err, shortCircuit, duration))
}

// emit hands event to the hooks, counting any it could not deliver.
func (p *Pipeline[T]) emit(ctx context.Context, key hookz.Key, event PipelineEvent) {
	if err := p.hooks.Emit(ctx, key, event); err != nil {
		p.metrics.Counter(PipelineEventsDropped).Inc()
	}
}

func (p *Pipeline[T]) stageEvent(r *run[T], pipe Pipe[T], index int, err error, shortCircuit bool, duration time.Duration) PipelineEvent {
	return PipelineEvent{
		Name:         p.name,
		RunID:        r.id,
		Stage:        pipe.Name(),
		Method:       r.method,
		StageIndex:   index,
		TotalStages:  len(r.pipes),
		Success:      err == nil,
		Error:        err,
		ShortCircuit: shortCircuit,
		Duration:     duration,
		Timestamp:    r.clock.Now(),
	}
}

// Name returns the name of this pipeline.
func (p *Pipeline[T]) Name() Name {
	return p.name
}

// Method returns the configured invocation method.
func (p *Pipeline[T]) Method() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.method
}

// Len returns the number of configured stages.
func (p *Pipeline[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pipes)
}

// Stages returns the configured stages in order.
func (p *Pipeline[T]) Stages() []Pipe[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.pipes)
}

// Metrics returns the metrics registry for this pipeline.
func (p *Pipeline[T]) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer returns the tracer for this pipeline.
func (p *Pipeline[T]) Tracer() *tracez.Tracer {
	return p.tracer
}

// Close gracefully shuts down observability components.
func (p *Pipeline[T]) Close() error {
	if p.tracer != nil {
		p.tracer.Close()
	}
	p.hooks.Close()
	return nil
}

// OnStageComplete registers a handler called each time a stage returns,
// successfully or not. Handlers run asynchronously.
func (p *Pipeline[T]) OnStageComplete(handler func(context.Context, PipelineEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventStageComplete, handler)
	return err
}

// OnShortCircuit registers a handler called when a stage returns without
// calling next. Handlers run asynchronously.
func (p *Pipeline[T]) OnShortCircuit(handler func(context.Context, PipelineEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventShortCircuit, handler)
	return err
}

// OnComplete registers a handler called when a run ends.
// Handlers run asynchronously.
func (p *Pipeline[T]) OnComplete(handler func(context.Context, PipelineEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventComplete, handler)
	return err
}

func (p *Pipeline[T]) getClock() clockz.Clock {
	if p.clock == nil {
		return clockz.RealClock
	}
	return p.clock
}
