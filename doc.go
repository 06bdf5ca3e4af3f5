// Package relayz provides a type-safe middleware pipeline for Go: a payload is
// threaded through an ordered list of stages, and each stage decides whether
// and how to call the rest of the chain.
//
// # Overview
//
// A stage receives the payload and a Next continuation. Calling next runs
// every later stage and the destination, and returns their result; not calling
// it ends the chain right there with whatever the stage returns. This is the
// classic onion: the first stage wraps everything after it.
//
//	result, err := relayz.New[Request]("api", registry).
//	    Send(req).
//	    Through(
//	        relayz.Ref[Request]("auth"),
//	        relayz.Ref[Request]("throttle:100,burst"),
//	        relayz.Func("trace", traceStage),
//	    ).
//	    Then(ctx, serve)
//
// # Stages
//
// Pipe[T] describes a stage as one of three variants:
//
//   - Func: an inline StageFunc
//   - Object: a stage object built by the caller
//   - Ref: a string identifier "name[:param1,param2]" looked up through a
//     Locator when the chain reaches it, with the parameters appended to
//     the invocation
//
// Stage objects expose their behavior through capability interfaces instead
// of method names:
//
//   - Handler[T]: the default "handle" method
//   - Dispatcher[T]: named invocation modes selected with Pipeline.Via
//   - Invoker[T]: direct invocation, used when no method applies
//
// Adapters build common stages in one line:
//
//   - Transform: pure transformation, then continue
//   - Apply: fallible transformation, then continue
//   - Effect: side effect, then continue
//   - Mutate: conditional transformation, then continue
//   - Enrich: best-effort enhancement, then continue
//   - Guard: continue only when a condition holds
//   - Tap: continue, then observe the result
//   - Around: wrap the rest of the chain
//
// # Carry
//
// Every value a stage returns passes through the pipeline's CarryFunc before
// it reaches the stage before it. The default is the identity; WithCarry
// installs another. The destination's own return value is not carried.
//
// # Errors
//
// Errors returned by stages reach the caller unchanged. A stage that cannot be
// resolved fails with *StageResolutionError at the point it would have run;
// earlier stages are not rolled back. There are no retries or fallbacks.
//
// # Observability
//
// Pipelines and registries record metricz metrics, pipelines open tracez spans
// for each run and stage, and emit hookz events as stages complete, short
// circuit and runs finish. The metrics package exports them to Prometheus.
package relayz
