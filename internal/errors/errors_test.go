package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *ServiceError
		status int
		code   ErrorCode
	}{
		{"validation", Validation("invalid merchant address"), http.StatusBadRequest, CodeValidation},
		{"missing", MissingField("txHash"), http.StatusBadRequest, CodeMissingField},
		{"auth", AuthenticationRequired(""), http.StatusUnauthorized, CodeAuthRequired},
		{"forbidden", AuthorizationDenied("not your invoice"), http.StatusForbidden, CodeAuthorizationDeny},
		{"not-found", NotFound("invoice"), http.StatusNotFound, CodeNotFound},
		{"conflict", Conflict("invoice already paid"), http.StatusConflict, CodeConflict},
		{"rate", RateLimitExceeded(60, "1m0s"), http.StatusTooManyRequests, CodeRateLimitExceeded},
		{"backend", BackendUnavailable("query failed", fmt.Errorf("dial tcp")), http.StatusInternalServerError, CodeBackendUnavailable},
		{"internal", Internal("", nil), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestGetServiceErrorUnwraps(t *testing.T) {
	base := NotFound("contact")
	wrapped := fmt.Errorf("delete contact: %w", base)

	se := GetServiceError(wrapped)
	require.NotNil(t, se)
	assert.Equal(t, CodeNotFound, se.Code)
	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(fmt.Errorf("plain"), CodeNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("plain")))
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := Validation("bad")
	withField := base.WithDetails("field", "amount")

	assert.Nil(t, base.Details)
	assert.Equal(t, "amount", withField.Details["field"])
}

func TestBackendUnavailableKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := BackendUnavailable("ping failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "backend unavailable", err.Message)
	assert.Equal(t, "ping failed", err.Details["reason"])
}
