package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/R3E-Network/payme/internal/errors"
	"github.com/R3E-Network/payme/internal/logging"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"abc"}`, rr.Body.String())
}

func TestWriteServiceError_ClientError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-1"))
	rr := httptest.NewRecorder()

	WriteServiceError(rr, req, svcerrors.MissingField("merchantAddress"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, string(svcerrors.CodeMissingField), body.Code)
	assert.Equal(t, "merchantAddress is required", body.Detail)
	assert.Equal(t, "merchantAddress", body.Details["field"])
	assert.Equal(t, "trace-1", body.TraceID)
}

func TestWriteServiceError_HidesInternalCause(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	cause := errors.New("dial tcp postgres://admin:secret@db:5432")
	WriteServiceError(rr, req, svcerrors.BackendUnavailable("connection refused", cause))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret")
	assert.NotContains(t, rr.Body.String(), "connection refused")
	body := decodeError(t, rr)
	assert.Equal(t, "backend unavailable", body.Detail)
}

func TestWriteServiceError_PlainError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteServiceError(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
	assert.Equal(t, string(svcerrors.CodeInternal), decodeError(t, rr).Code)
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"alice","extra":1}`))
		rr := httptest.NewRecorder()

		var v struct {
			Name string `json:"name"`
		}
		assert.True(t, DecodeJSON(rr, req, &v))
		assert.Equal(t, "alice", v.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		rr := httptest.NewRecorder()

		var v map[string]interface{}
		assert.False(t, DecodeJSON(rr, req, &v))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "request body required", decodeError(t, rr).Detail)
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		rr := httptest.NewRecorder()

		var v map[string]interface{}
		assert.False(t, DecodeJSON(rr, req, &v))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestShortcutWriters(t *testing.T) {
	rr := httptest.NewRecorder()
	InternalError(rr, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", decodeError(t, rr).Detail)

	rr = httptest.NewRecorder()
	NotFound(rr, "invoice not found")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	NoContent(rr)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}
