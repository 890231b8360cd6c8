// Package hustler provides a top-level convenience entry point for building
// and running task pipelines with minimal boilerplate.
//
// Usage:
//
//	import "github.com/hustlerlabs/hustler"
//
//	analyst := hustler.NewTask("analyst", analyzeHandler)
//	investor := hustler.NewTask("investor", decideHandler)
//	analyst.Then(investor)
//
//	h, err := hustler.New(analyst, hustler.WithLogger(logger))
//	err = h.Start(ctx, firm, pitch)
//
// This is a thin wrapper around the engine package; both produce identical
// results. Use this package when you prefer the shorter import path.
package hustler

import (
	"github.com/hustlerlabs/hustler/engine"
)

// Core pipeline types re-exported from engine/.

// Task is one unit of work in a pipeline.
type Task = engine.Task

// Station is the immutable envelope carrying capital and change.
type Station = engine.Station

// Move is a task's routing decision.
type Move = engine.Move

// Delivery is the context handed to a handler's delivery step.
type Delivery = engine.Delivery

// Handler is the work a task performs.
type Handler = engine.Handler

// Hustle is the sequential FIFO scheduler over a task graph.
type Hustle = engine.Hustle

// Cloner lets change payloads holding non-copyable resources control their
// own duplication.
type Cloner = engine.Cloner

// RouteForward is the default route taken when a delivery emits no moves.
const RouteForward = engine.RouteForward

// New creates a scheduler for the graph reachable from entry.
func New(entry *Task, opts ...engine.Option) (*Hustle, error) {
	return engine.NewHustle(entry, opts...)
}

// Re-export constructors and options so simple pipelines never need to
// import engine/.

// NewTask creates a named task around a handler.
var NewTask = engine.NewTask

// NewStation wraps capital and change in a root envelope.
var NewStation = engine.NewStation

// NewFuncHandler builds a handler from plain functions.
var NewFuncHandler = engine.NewFuncHandler

// WithRequirements attaches an input schema to a task.
var WithRequirements = engine.WithRequirements

// WithPolicy attaches a retry policy to a task.
var WithPolicy = engine.WithPolicy

// WithLogger sets the scheduler's structured logger.
var WithLogger = engine.WithLogger

// WithSink sets the scheduler's event sink.
var WithSink = engine.WithSink
