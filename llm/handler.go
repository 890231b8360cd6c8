package llm

import (
	"context"

	"github.com/hustlerlabs/hustler/engine"
	"github.com/hustlerlabs/hustler/types"
)

// MessageBuilder renders a branch's validated input into the transcript
// sent to the provider.
type MessageBuilder func(specs any) []types.Message

// DeliverFunc consumes the completion text during the task's delivery step.
// It may mutate the station's capital and emit moves through d.
type DeliverFunc func(ctx context.Context, d *engine.Delivery, text string) error

// CompletionHandler runs a chat completion as a task body: Run sends the
// built transcript to the provider and returns the response text, Deliver
// hands the text to the caller's delivery function. Provider failures keep
// their types.Error kind, so the task's retry policy sees correct
// retryability.
type CompletionHandler struct {
	provider Provider
	model    string
	build    MessageBuilder
	deliver  DeliverFunc
}

// NewCompletionHandler creates a handler around the given provider and
// model. A nil deliver leaves the station untouched, so the task
// default-forwards.
func NewCompletionHandler(p Provider, model string, build MessageBuilder, deliver DeliverFunc) *CompletionHandler {
	return &CompletionHandler{provider: p, model: model, build: build, deliver: deliver}
}

// Run implements engine.Handler.
func (h *CompletionHandler) Run(ctx context.Context, specs any) (any, error) {
	resp, err := h.provider.Completion(ctx, &ChatRequest{
		Model:    h.model,
		Messages: h.build(specs),
	})
	if err != nil {
		return nil, err
	}
	return resp.Text(), nil
}

// Deliver implements engine.Handler.
func (h *CompletionHandler) Deliver(ctx context.Context, d *engine.Delivery) error {
	if h.deliver == nil {
		return nil
	}
	text, _ := d.Output.(string)
	return h.deliver(ctx, d, text)
}
