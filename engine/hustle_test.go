package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hustlerlabs/hustler/event"
	"github.com/hustlerlabs/hustler/types"
)

// captureSink records events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *captureSink) Emit(e event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Name
	}
	return out
}

func (c *captureSink) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

func trackingTask(name string, order *[]string) *Task {
	return NewTask(name, NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			*order = append(*order, name)
			return nil, nil
		},
		nil,
	), WithPolicy(quickRetry()))
}

func TestStartPipelineEndToEnd(t *testing.T) {
	analyst := NewTask("analyst", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			return "three fatal flaws", nil
		},
		func(ctx context.Context, d *Delivery) error {
			d.Station.Change().(*deck).Analysis = d.Output.(string)
			d.Forward()
			return nil
		},
	), WithPolicy(quickRetry()))

	investor := NewTask("investor", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			return "FUND", nil
		},
		func(ctx context.Context, d *Delivery) error {
			fm := d.Station.Capital().(*firm)
			fm.Portfolio = append(fm.Portfolio, d.Station.Change().(*deck).Name)
			return nil
		},
	), WithPolicy(quickRetry()))

	analyst.Then(investor)

	h, err := NewHustle(analyst)
	require.NoError(t, err)

	f := &firm{}
	require.NoError(t, h.Start(context.Background(), f, &deck{Name: "UberForCats"}))
	require.NoError(t, h.Start(context.Background(), f, &deck{Name: "CureAI"}))

	// Capital accumulates across runs; each deck was branch-local.
	assert.Equal(t, []string{"UberForCats", "CureAI"}, f.Portfolio)
}

func TestStartMapPipelineWithContract(t *testing.T) {
	schema := types.NewObjectSchema().
		AddProperty("name", types.NewStringSchema()).
		AddRequired("name")

	root := NewTask("root", echoHandler(),
		WithRequirements(schema), WithPolicy(quickRetry()))

	appender := NewTask("appender", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) { return nil, nil },
		func(ctx context.Context, d *Delivery) error {
			capital := d.Station.Capital().(map[string]any)
			name := d.Station.Change().(map[string]any)["name"].(string)
			capital["portfolio"] = append(capital["portfolio"].([]string), name)
			return nil
		},
	), WithPolicy(quickRetry()))
	root.Then(appender)

	h, err := NewHustle(root)
	require.NoError(t, err)

	capital := map[string]any{"portfolio": []string{}}
	require.NoError(t, h.Start(context.Background(), capital, map[string]any{"name": "Foo"}))
	assert.Equal(t, []string{"Foo"}, capital["portfolio"])
}

func TestStartBreadthFirstOrder(t *testing.T) {
	var order []string
	b := trackingTask("b", &order)
	c := trackingTask("c", &order)
	d := trackingTask("d", &order)

	// a fans out to b and c; both feed d.
	fanout := NewTask("a", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			order = append(order, "a")
			return nil, nil
		},
		func(ctx context.Context, dv *Delivery) error {
			dv.Move("left", nil)
			dv.Move("right", nil)
			return nil
		},
	), WithPolicy(quickRetry()))
	fanout.Link("left", b).Link("right", c)
	b.Then(d)
	c.Then(d)

	h, err := NewHustle(fanout)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background(), nil, map[string]any{}))

	// Siblings run before either branch descends: d executes once per branch,
	// after both b and c.
	assert.Equal(t, []string{"a", "b", "c", "d", "d"}, order)
}

func TestStartForksCarryMovePayload(t *testing.T) {
	var seen []string
	entry := NewTask("router", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) { return nil, nil },
		func(ctx context.Context, d *Delivery) error {
			d.Move("next", map[string]any{"label": "left"})
			d.Move("next", map[string]any{"label": "right"})
			return nil
		},
	), WithPolicy(quickRetry()))

	next := NewTask("reader", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			seen = append(seen, specs.(map[string]any)["label"].(string))
			return nil, nil
		},
		nil,
	), WithPolicy(quickRetry()))
	entry.Link("next", next)

	h, err := NewHustle(entry)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background(), nil, map[string]any{"label": "root"}))

	assert.Equal(t, []string{"left", "right"}, seen)
}

func TestStartUnknownRouteEndsBranchSilently(t *testing.T) {
	sink := &captureSink{}
	var order []string

	entry := NewTask("decider", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			order = append(order, "decider")
			return nil, nil
		},
		func(ctx context.Context, d *Delivery) error {
			d.Move("reject", nil) // no link registered
			return nil
		},
	), WithPolicy(quickRetry()))
	entry.Link("accept", trackingTask("acceptor", &order))

	h, err := NewHustle(entry, WithSink(sink))
	require.NoError(t, err)

	require.NoError(t, h.Start(context.Background(), nil, map[string]any{}))

	assert.Equal(t, []string{"decider"}, order)
	assert.Equal(t, 1, sink.count(event.BranchEnd))
	assert.Equal(t, 1, sink.count(event.RunComplete))
	assert.Zero(t, sink.count(event.RunFailed))
}

func TestStartAbortsWholeRunOnError(t *testing.T) {
	sink := &captureSink{}
	var order []string

	entry := NewTask("fanout", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) { return nil, nil },
		func(ctx context.Context, d *Delivery) error {
			d.Move("fail", nil)
			d.Move("ok", nil)
			return nil
		},
	), WithPolicy(quickRetry()))

	failing := NewTask("failing", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			return nil, types.NewValidationError("unrecoverable")
		},
		nil,
	), WithPolicy(quickRetry()))
	entry.Link("fail", failing).Link("ok", trackingTask("survivor", &order))

	h, err := NewHustle(entry, WithSink(sink))
	require.NoError(t, err)

	err = h.Start(context.Background(), nil, map[string]any{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	// The sibling branch queued behind the failure never runs.
	assert.Empty(t, order)
	assert.Equal(t, 1, sink.count(event.RunFailed))
	assert.Zero(t, sink.count(event.RunComplete))
}

func TestStartRetriesReachRunSink(t *testing.T) {
	sink := &captureSink{}
	calls := 0

	entry := NewTask("flaky", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("transient")
			}
			return nil, nil
		},
		nil,
	), WithPolicy(quickRetry()))

	h, err := NewHustle(entry, WithSink(sink))
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background(), nil, map[string]any{}))

	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, sink.count(event.RetryAttempt))
	assert.Equal(t, 1, sink.count(event.RunComplete))
}

func TestStartContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry := trackingTask("never", new([]string))
	h, err := NewHustle(entry)
	require.NoError(t, err)

	err = h.Start(ctx, nil, map[string]any{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStartContextCanceledBetweenTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var order []string

	entry := NewTask("canceler", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) {
			order = append(order, "canceler")
			cancel()
			return nil, nil
		},
		nil,
	), WithPolicy(quickRetry()))
	entry.Then(trackingTask("after", &order))

	h, err := NewHustle(entry)
	require.NoError(t, err)

	err = h.Start(ctx, nil, map[string]any{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"canceler"}, order)
}

func TestStartEmitsLifecycleEvents(t *testing.T) {
	sink := &captureSink{}

	entry := NewTask("only", echoHandler(), WithPolicy(quickRetry()))
	h, err := NewHustle(entry, WithSink(sink))
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background(), nil, map[string]any{}))

	assert.Equal(t, []string{
		event.RunStart,
		event.TaskStart,
		event.TaskComplete,
		event.BranchEnd, // implicit forward with no link
		event.RunComplete,
	}, sink.names())
}

func TestNewHustleRejectsNilEntry(t *testing.T) {
	_, err := NewHustle(nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRouting))
}

func TestNewHustleSurfacesGraphDefects(t *testing.T) {
	entry := NewTask("entry", echoHandler())
	entry.Then(NewTask("broken", nil)) // nil handler deep in the graph

	_, err := NewHustle(entry)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRouting))
	assert.Contains(t, err.Error(), "broken")
}

func TestStartIsSequential(t *testing.T) {
	// Slow tasks must not overlap: the scheduler runs one step at a time.
	var active, maxActive int
	var mu sync.Mutex

	body := func(ctx context.Context, specs any) (any, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	}

	entry := NewTask("fan", NewFuncHandler(
		func(ctx context.Context, specs any) (any, error) { return nil, nil },
		func(ctx context.Context, d *Delivery) error {
			d.Move("a", nil)
			d.Move("b", nil)
			return nil
		},
	), WithPolicy(quickRetry()))
	entry.Link("a", NewTask("a", NewFuncHandler(body, nil), WithPolicy(quickRetry())))
	entry.Link("b", NewTask("b", NewFuncHandler(body, nil), WithPolicy(quickRetry())))

	h, err := NewHustle(entry)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background(), nil, map[string]any{}))

	assert.Equal(t, 1, maxActive)
}
