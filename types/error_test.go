package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := NewValidationError("field %s missing", "name")
	assert.Equal(t, "[VALIDATION] field name missing", err.Error())

	cause := errors.New("boom")
	err = NewExecutionError("task failed").WithCause(cause)
	assert.Equal(t, "[EXECUTION] task failed: boom", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrUpstreamError, "request failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)
}

func TestErrorRetryableDefaults(t *testing.T) {
	assert.False(t, NewValidationError("bad input").Retryable)
	assert.False(t, NewRoutingError("nil successor").Retryable)
	assert.False(t, NewConfigurationError("bad policy").Retryable)
	assert.True(t, NewExecutionError("transient").Retryable)
}

func TestIsRetryable(t *testing.T) {
	// Plain errors are treated as transient.
	assert.True(t, IsRetryable(errors.New("some failure")))
	assert.False(t, IsRetryable(nil))

	assert.False(t, IsRetryable(NewValidationError("bad input")))
	assert.True(t, IsRetryable(NewExecutionError("transient")))
	assert.True(t, IsRetryable(NewError(ErrRateLimited, "slow down").WithRetryable(true)))
}

func TestIsRetryableWrapped(t *testing.T) {
	inner := NewValidationError("bad input")
	wrapped := fmt.Errorf("step failed: %w", inner)

	assert.False(t, IsRetryable(wrapped))
	assert.Equal(t, ErrValidation, GetErrorCode(wrapped))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrRouting, GetErrorCode(NewRoutingError("bad graph")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.True(t, IsErrorCode(NewConfigurationError("x"), ErrConfiguration))
	assert.False(t, IsErrorCode(nil, ErrConfiguration))
}

func TestErrorBuilderChain(t *testing.T) {
	err := NewError(ErrRateLimited, "slow down").
		WithHTTPStatus(429).
		WithRetryable(true).
		WithProvider("openrouter")

	require.NotNil(t, err)
	assert.Equal(t, 429, err.HTTPStatus)
	assert.True(t, err.Retryable)
	assert.Equal(t, "openrouter", err.Provider)
}
