package engine

import (
	"context"

	"github.com/hustlerlabs/hustler/retry"
	"github.com/hustlerlabs/hustler/types"
)

// RouteForward is the default route followed when a delivery step emits no
// explicit move.
const RouteForward = "forward"

// Move declares routing intent: which named edge to follow and what to
// merge into the next envelope's change.
type Move struct {
	Route   string
	Payload map[string]any
}

// Handler implements a task's behavior. Run is the core operation, wrapped
// by the task's retry policy; Deliver applies side effects and declares
// routing intent, and is never retried.
type Handler interface {
	Run(ctx context.Context, specs any) (any, error)
	Deliver(ctx context.Context, d *Delivery) error
}

// Delivery is handed to Handler.Deliver: the station being processed, the
// validated input, and the execution output. Deliver may mutate the
// station's capital in place and emit zero or more moves.
type Delivery struct {
	Station *Station
	Specs   any
	Output  any

	moves []Move
}

// Move declares that the branch should follow the named route, optionally
// merging payload into the successor's change.
func (d *Delivery) Move(route string, payload map[string]any) {
	d.moves = append(d.moves, Move{Route: route, Payload: payload})
}

// Forward declares the default route with no payload.
func (d *Delivery) Forward() {
	d.Move(RouteForward, nil)
}

// FuncHandler adapts plain functions to the Handler interface.
type FuncHandler struct {
	run     func(ctx context.Context, specs any) (any, error)
	deliver func(ctx context.Context, d *Delivery) error
}

// NewFuncHandler creates a handler from a run function and an optional
// deliver function. A nil deliver leaves the station untouched, so the task
// default-forwards.
func NewFuncHandler(
	run func(ctx context.Context, specs any) (any, error),
	deliver func(ctx context.Context, d *Delivery) error,
) *FuncHandler {
	return &FuncHandler{run: run, deliver: deliver}
}

func (h *FuncHandler) Run(ctx context.Context, specs any) (any, error) {
	return h.run(ctx, specs)
}

func (h *FuncHandler) Deliver(ctx context.Context, d *Delivery) error {
	if h.deliver == nil {
		return nil
	}
	return h.deliver(ctx, d)
}

// Task is a node in the work graph. It wraps a Handler with an optional
// input contract, a retry policy, and a table of named outgoing edges. The
// link table is populated before the run starts and not mutated during
// execution.
type Task struct {
	name         string
	handler      Handler
	requirements *types.JSONSchema
	policy       *retry.Policy
	links        map[string]*Task

	// buildErr records graph-construction defects; Hustle surfaces the
	// first one as a ROUTING error before any task runs.
	buildErr error
}

// TaskOption configures a task at construction time.
type TaskOption func(*Task)

// WithRequirements sets the input contract. It applies only when the
// station's change is a loosely-typed map; see Step.
func WithRequirements(s *types.JSONSchema) TaskOption {
	return func(t *Task) { t.requirements = s }
}

// WithPolicy sets the retry policy wrapping Run. Defaults to retry.Default().
func WithPolicy(p *retry.Policy) TaskOption {
	return func(t *Task) { t.policy = p }
}

// NewTask creates a work unit around the given handler.
func NewTask(name string, handler Handler, opts ...TaskOption) *Task {
	t := &Task{
		name:    name,
		handler: handler,
		links:   make(map[string]*Task),
	}
	if handler == nil {
		t.buildErr = types.NewRoutingError("task %q has no handler", name)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the task name used in logs and events.
func (t *Task) Name() string { return t.name }

// Link registers a named outgoing edge and returns the receiver.
func (t *Task) Link(route string, next *Task) *Task {
	if route == "" {
		t.buildErr = types.NewRoutingError("task %q: route name must not be empty", t.name)
		return t
	}
	if next == nil {
		t.buildErr = types.NewRoutingError("task %q: successor for route %q is nil", t.name, route)
		return t
	}
	t.links[route] = next
	return t
}

// Then registers next under the default route and returns next, so
// pipelines chain left to right: a.Then(b).Then(c).
func (t *Task) Then(next *Task) *Task {
	t.Link(RouteForward, next)
	return next
}

// Step runs one scheduling turn against the given station:
//
//  1. Validate: when a contract is configured and the change is a
//     loosely-typed map, coerce and validate it. A structured (non-map)
//     change skips validation even when a contract is configured; it is
//     treated as validated upstream. This asymmetry is part of the task
//     contract.
//  2. Execute: run the handler's core operation under the retry policy.
//  3. Deliver: apply side effects; the handler may mutate capital and emit
//     moves. Delivery failures propagate immediately, never retried.
//  4. Finalize: no emitted moves means one implicit forward move.
//
// Validation errors are never retried and abort the step immediately.
func (t *Task) Step(ctx context.Context, station *Station) ([]Move, error) {
	if t.buildErr != nil {
		return nil, t.buildErr
	}

	specs := station.Change()
	if t.requirements != nil {
		if m, ok := specs.(map[string]any); ok {
			coerced, err := t.requirements.Validate(m)
			if err != nil {
				return nil, err
			}
			specs = coerced
		}
	}

	policy := t.policy
	if policy == nil {
		policy = retry.Default()
	}
	if policy.Source == "" {
		scoped := *policy
		scoped.Source = t.name
		policy = &scoped
	}
	output, err := retry.Do(ctx, policy, func(ctx context.Context) (any, error) {
		return t.handler.Run(ctx, specs)
	})
	if err != nil {
		return nil, err
	}

	d := &Delivery{Station: station, Specs: specs, Output: output}
	if err := t.handler.Deliver(ctx, d); err != nil {
		return nil, err
	}

	if len(d.moves) == 0 {
		return []Move{{Route: RouteForward}}, nil
	}
	return d.moves, nil
}
