package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hustlerlabs/hustler/event"
	"github.com/hustlerlabs/hustler/types"
)

// Hustle drives a task graph from its entry task: it pops (task, station)
// pairs off a FIFO queue, steps each task, and enqueues one forked station
// per emitted move whose route has a matching link. Execution is strictly
// sequential and breadth-first; a run ends when the queue empties or the
// first unrecovered error aborts it.
type Hustle struct {
	entry  *Task
	logger *zap.Logger
	sink   event.Sink
}

// Option configures a Hustle.
type Option func(*Hustle)

// WithLogger sets the structured logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hustle) { h.logger = logger }
}

// WithSink sets the run's event sink. Defaults to event.Nop().
func WithSink(s event.Sink) Option {
	return func(h *Hustle) { h.sink = s }
}

// NewHustle creates a scheduler for the graph reachable from entry. Graph
// defects (nil entry, nil successors, missing handlers) are reported here as
// ROUTING errors, before any run starts.
func NewHustle(entry *Task, opts ...Option) (*Hustle, error) {
	if entry == nil {
		return nil, types.NewRoutingError("hustle requires an entry task")
	}
	if err := validateGraph(entry); err != nil {
		return nil, err
	}

	h := &Hustle{
		entry:  entry,
		logger: zap.NewNop(),
		sink:   event.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "hustle"))
	return h, nil
}

func validateGraph(entry *Task) error {
	seen := make(map[*Task]bool)
	stack := []*Task{entry}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[t] {
			continue
		}
		seen[t] = true
		if t.buildErr != nil {
			return t.buildErr
		}
		for _, next := range t.links {
			stack = append(stack, next)
		}
	}
	return nil
}

type queueItem struct {
	task    *Task
	station *Station
}

// Start executes one run over the graph, beginning at the entry task with a
// root station wrapping the caller's capital and change. It returns when
// the queue empties, or with the first unrecovered error, which aborts the
// entire run: remaining queued branches are not given a chance to execute.
// No final envelope is returned; the run's observable result is whatever
// was applied to capital plus the emitted event stream.
//
// The context is checked before every dequeue, so cancellation stops the
// run between steps.
func (h *Hustle) Start(ctx context.Context, capital, change any) error {
	runID := uuid.NewString()
	logger := h.logger.With(zap.String("run_id", runID))
	ctx = event.WithSink(ctx, h.sink)

	h.sink.Emit(event.Event{Name: event.RunStart, Fields: map[string]any{
		"run_id": runID,
		"entry":  h.entry.Name(),
	}})
	logger.Info("run started", zap.String("entry", h.entry.Name()))

	queue := []queueItem{{task: h.entry, station: NewStation(capital, change)}}
	executed := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			h.emitFailure(runID, executed, err)
			return err
		}

		item := queue[0]
		queue = queue[1:]

		h.sink.Emit(event.Event{Name: event.TaskStart, Fields: map[string]any{
			"run_id":  runID,
			"task":    item.task.Name(),
			"lineage": item.station.Lineage(),
		}})
		logger.Debug("stepping task",
			zap.String("task", item.task.Name()),
			zap.String("lineage", item.station.Lineage()),
		)

		moves, err := item.task.Step(ctx, item.station)
		if err != nil {
			logger.Error("task failed, aborting run",
				zap.String("task", item.task.Name()),
				zap.String("lineage", item.station.Lineage()),
				zap.Error(err),
			)
			h.emitFailure(runID, executed, err)
			return err
		}
		executed++

		h.sink.Emit(event.Event{Name: event.TaskComplete, Fields: map[string]any{
			"run_id":  runID,
			"task":    item.task.Name(),
			"lineage": item.station.Lineage(),
			"moves":   len(moves),
		}})

		for _, move := range moves {
			next, ok := item.task.links[move.Route]
			if !ok {
				// Normal termination for this branch, not an error.
				h.sink.Emit(event.Event{Name: event.BranchEnd, Fields: map[string]any{
					"run_id":  runID,
					"task":    item.task.Name(),
					"route":   move.Route,
					"lineage": item.station.Lineage(),
				}})
				logger.Debug("branch ended",
					zap.String("task", item.task.Name()),
					zap.String("route", move.Route),
				)
				continue
			}

			forked, err := item.station.Fork(move.Payload)
			if err != nil {
				h.emitFailure(runID, executed, err)
				return err
			}
			queue = append(queue, queueItem{task: next, station: forked})
		}
	}

	h.sink.Emit(event.Event{Name: event.RunComplete, Fields: map[string]any{
		"run_id":         runID,
		"tasks_executed": executed,
	}})
	logger.Info("run complete", zap.Int("tasks_executed", executed))
	return nil
}

func (h *Hustle) emitFailure(runID string, executed int, err error) {
	h.sink.Emit(event.Event{Name: event.RunFailed, Fields: map[string]any{
		"run_id":         runID,
		"tasks_executed": executed,
		"error":          err.Error(),
	}})
}
