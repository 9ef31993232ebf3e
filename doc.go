// Package brickz provides a type-safe composition layer for building data
// processing components in Go.
//
// # Overview
//
// brickz treats small units of behavior as bricks: self-contained
// components with a typed input, a typed output, and a name. Bricks compose
// into composites, composites compose into pipelines, and the result of
// every composition is itself a brick. The whole library is about making
// that composition safe, observable, and replaceable at runtime.
//
// # Core Concepts
//
// Everything is built around one interface:
//
//   - Brick[In, Out]: Invoke(context.Context, In, Deps) (Out, error) plus Name()
//   - Func: plain functions wrapped as bricks via Transform, Apply, and Effect
//   - Connectors: Compose, Branch, Parallel, FanIn, Boundary, and Swap join
//     bricks into larger flows, and each connector is itself a Brick
//
// Type compatibility is established when bricks are joined, not when data
// flows. Composing two typed bricks is checked by the compiler; composing
// erased stages through the Builder is checked against their declared types
// at build time, so a mismatched pipeline is rejected before it ever runs.
//
// # The Builder
//
// NewPipeline returns a fluent Builder that accumulates stages:
//
//	stage, err := brickz.NewPipeline("ingest").
//	    Then(parse).
//	    Then(validate).
//	    CatchErrors(fallback).
//	    Then(store).
//	    Build()
//
// Build finalizes the builder and reports every type incompatibility in the
// chain at once, each with a suggested adapter when the registry knows one.
// A finalized builder rejects further mutation while the built stage keeps
// working; Visualize and Explain remain available in every state.
//
// # Error Handling
//
// Failures surface as *Error[T] carrying the input, the elapsed duration,
// timeout and cancellation flags, and the full path of names from the
// outermost composite down to the brick that failed. Boundary intercepts
// matching errors and produces a substitute result; errors that escape a
// boundary keep propagating unchanged.
//
// # Hot Swapping
//
// Swap holds an active brick and replaces it without stopping traffic.
// Four strategies are built in: immediate cutover, gradual weighted
// rollout, canary with automatic promotion or rollback, and blue-green
// with an atomic flip. In-flight invocations always finish against the
// brick they started with, and every transition lands in an inspectable
// history.
//
// # Observability
//
// Connectors expose metrics through metricz, spans through tracez, and
// typed events through hookz. Time-dependent behavior (retry backoff,
// timeouts, swap records) goes through clockz so tests can drive a fake
// clock instead of sleeping.
package brickz
