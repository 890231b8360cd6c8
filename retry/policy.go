// Copyright (c) Hustler Authors.
// Licensed under the MIT License.

// Package retry provides bounded exponential-backoff retry around fallible
// operations. Every attempt emits a structured event to an injectable sink,
// and the terminal failure returns the operation's last error unchanged so
// callers keep its original kind.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/hustlerlabs/hustler/event"
	"github.com/hustlerlabs/hustler/types"
)

// Policy configures bounded exponential backoff.
//
// An operation is invoked up to MaxAttempts times. After a retryable
// failure the policy sleeps InitialDelay * Multiplier^i (i counting failed
// attempts from zero), capped at MaxDelay, plus a uniform random jitter in
// [0, Jitter).
type Policy struct {
	MaxAttempts  int           // total attempts, must be >= 1
	InitialDelay time.Duration // delay before the first retry, >= 0
	Multiplier   float64       // backoff factor, defaults to 2
	MaxDelay     time.Duration // delay cap, 0 means uncapped
	Jitter       time.Duration // optional random jitter added to each delay

	Source string       // label attached to emitted events
	Sink   event.Sink   // attempt/failure event sink, defaults to event.Nop()
	Logger *zap.Logger  // defaults to zap.NewNop()
}

// Default returns the policy used when a task declares none.
func Default() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Validate reports a CONFIGURATION error for malformed policies.
func (p *Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return types.NewConfigurationError("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return types.NewConfigurationError("retry: initial delay must be >= 0, got %v", p.InitialDelay)
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		return types.NewConfigurationError("retry: multiplier must be >= 1, got %v", p.Multiplier)
	}
	if p.Jitter < 0 {
		return types.NewConfigurationError("retry: jitter must be >= 0, got %v", p.Jitter)
	}
	return nil
}

// Do runs op under the policy and discards its result.
func (p *Policy) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do runs op under policy p, retrying retryable failures with exponential
// backoff. A nil policy means Default(). On success the op's value is
// returned immediately with no further sleeping. When attempts are
// exhausted, or the failure is marked non-retryable, the last error is
// returned as-is; the attempt count travels on the terminal event.
func Do[T any](ctx context.Context, p *Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p == nil {
		p = Default()
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	sink := p.Sink
	if sink == nil {
		sink = event.FromContext(ctx)
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("operation recovered",
					zap.String("source", p.Source),
					zap.Int("attempt", attempt+1),
				)
			}
			return out, nil
		}
		lastErr = err

		if !types.IsRetryable(err) || attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.delay(attempt)
		sink.Emit(event.Event{Name: event.RetryAttempt, Fields: map[string]any{
			"source":       p.Source,
			"attempt":      attempt + 1,
			"max_attempts": p.MaxAttempts,
			"delay":        delay,
			"error":        err.Error(),
		}})
		logger.Warn("operation failed, retrying",
			zap.String("source", p.Source),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	sink.Emit(event.Event{Name: event.RetryExhausted, Fields: map[string]any{
		"source":       p.Source,
		"max_attempts": p.MaxAttempts,
		"error":        lastErr.Error(),
	}})
	logger.Error("operation failed permanently",
		zap.String("source", p.Source),
		zap.Int("max_attempts", p.MaxAttempts),
		zap.Error(lastErr),
	)
	return zero, lastErr
}

// delay computes the backoff before retry number attempt+1.
func (p *Policy) delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}

	d := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += rand.Float64() * float64(p.Jitter)
	}
	return time.Duration(d)
}
