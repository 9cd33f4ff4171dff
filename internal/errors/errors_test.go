package errors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventwindow/eventwindow/internal/core/window"
)

func TestFromResult(t *testing.T) {
	assert.Nil(t, FromResult(context.Background(), "event_add", window.Okay))
	assert.Nil(t, FromResult(context.Background(), "event_add", window.BufferOverflow))

	env := FromResult(context.Background(), "start", window.AlreadyStarted)
	require.NotNil(t, env)
	assert.Equal(t, CodeConflict, env.Code)
	assert.Equal(t, http.StatusConflict, HTTPStatusFromEnvelope(env))
	assert.Equal(t, "already_started", env.Details["result"])
	assert.Equal(t, "start", env.Details["op"])

	env = FromResult(context.Background(), "stop", window.NotStarted)
	require.NotNil(t, env)
	assert.Equal(t, "window is not running", env.Message)
}

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeInvalidInput:       http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeConflict:           http.StatusConflict,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		CodeDatabase:           http.StatusInternalServerError,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/window/time?t=abc", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewInvalidInputError("t must be an unsigned 32-bit integer"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeInvalidInput, body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestEnsureEnvelopeWrapsPlainErrors(t *testing.T) {
	env := EnsureEnvelope(assert.AnError)
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, assert.AnError.Error(), env.Context["wrapped_error"])
}

func TestEnsureEnvelopeUnwraps(t *testing.T) {
	inner := NewConflictError("window is already running")
	env := EnsureEnvelope(fmt.Errorf("start: %w", inner))
	assert.Same(t, inner, env)
}

func TestResponseDetailsPrefersDetails(t *testing.T) {
	env := NewConflictError("window is not running").
		WithDetails(map[string]interface{}{"op": "stop"})
	env, err := env.WithContext(map[string]interface{}{"op": "ignored", "wrapped_error": "not started"})
	require.NoError(t, err)

	details := ResponseDetails(env)
	assert.Equal(t, "stop", details["op"])
	assert.Equal(t, "not started", details["wrapped_error"])
	assert.Nil(t, ResponseDetails(NewNotFoundError("missing")))
}

func TestRespondWithNilEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithEnvelope(rec, httptest.NewRequest(http.MethodGet, "/v1/snapshot", nil), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
