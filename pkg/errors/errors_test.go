package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_UnwrapsSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewPersistenceError("failed to place order").WithCause(cause)

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "failed to place order", err.Error())

	wrapped := fmt.Errorf("checkout: %w", err)
	var appErr *AppError
	assert.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not_found", NewNotFoundError("order not found"), http.StatusNotFound},
		{"validation", NewValidationError("bad input"), http.StatusBadRequest},
		{"gateway", NewGatewayError("esewa down"), http.StatusBadGateway},
		{"bare_sentinel", fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTimeoutError("slow")))
	assert.True(t, IsRetryable(NewTemporaryError("503")))
	assert.False(t, IsRetryable(NewGatewayError("rejected")))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrServiceUnavailable)))
	assert.False(t, IsRetryable(errors.New("plain")))
}
