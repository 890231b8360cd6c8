// Copyright (c) Hustler Authors.
// Licensed under the MIT License.

// Package event defines the structured event stream emitted by the engine
// and the retry policy. The sink is injectable so orchestration logic stays
// decoupled from logging and telemetry backends; internal/metrics provides a
// Prometheus-backed sink.
package event

import "context"

// Event names emitted by the engine and the retry policy.
const (
	RunStart       = "run_start"
	RunComplete    = "run_complete"
	RunFailed      = "run_failed"
	TaskStart      = "task_start"
	TaskComplete   = "task_complete"
	BranchEnd      = "branch_end"
	RetryAttempt   = "retry_attempt"
	RetryExhausted = "retry_exhausted"
)

// Event carries one structured occurrence as a name plus key-value fields.
// No engine behavior depends on how events are rendered.
type Event struct {
	Name   string
	Fields map[string]any
}

// Sink receives engine events.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Nop returns a sink that discards all events.
func Nop() Sink {
	return SinkFunc(func(Event) {})
}

type sinkKey struct{}

// WithSink stores a sink in the context so nested components (the retry
// policy inside a task step) emit to the run's stream without explicit
// wiring.
func WithSink(ctx context.Context, s Sink) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, sinkKey{}, s)
}

// FromContext retrieves the sink stored by WithSink, or Nop().
func FromContext(ctx context.Context) Sink {
	if ctx == nil {
		return Nop()
	}
	if s, ok := ctx.Value(sinkKey{}).(Sink); ok && s != nil {
		return s
	}
	return Nop()
}

// Multi fans one event out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}
