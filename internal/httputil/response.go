package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	svcerrors "github.com/R3E-Network/payme/internal/errors"
	"github.com/R3E-Network/payme/internal/logging"
)

// MaxRequestBodyBytes bounds JSON request bodies.
const MaxRequestBodyBytes = 1 << 20

// ErrorResponse is the JSON error envelope. Detail carries the message the
// frontend displays.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Detail  string                 `json:"detail"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"traceId,omitempty"`
}

// =============================================================================
// Success Responses
// =============================================================================

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// NoContent writes a 204 with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Error Responses
// =============================================================================

// WriteErrorResponse writes the error envelope, attaching the request trace id.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	resp := ErrorResponse{Code: code, Detail: message, Details: details}
	if r != nil {
		resp.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, resp)
}

// WriteServiceError renders err. ServiceErrors keep their status, code and
// client-safe message; anything else becomes a generic 500. The underlying
// cause is never written.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		se = svcerrors.Internal("", err)
	}

	details := se.Details
	if se.HTTPStatus >= http.StatusInternalServerError {
		// reasons are operator-facing
		details = nil
	}
	WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, details)
}

// BadRequest writes a 400 validation error.
func BadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusBadRequest, string(svcerrors.CodeValidation), message, nil)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusNotFound, string(svcerrors.CodeNotFound), message, nil)
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusUnauthorized, string(svcerrors.CodeAuthRequired), message, nil)
}

// InternalError writes a generic 500.
func InternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "internal error"
	}
	WriteErrorResponse(w, nil, http.StatusInternalServerError, string(svcerrors.CodeInternal), message, nil)
}

// =============================================================================
// Request Decoding
// =============================================================================

// DecodeJSON decodes the request body into v. On failure it writes a 400 and
// returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeBody(r, v); err != nil {
		WriteErrorResponse(w, r, http.StatusBadRequest, string(svcerrors.CodeValidation), err.Error(), nil)
		return false
	}
	return true
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return errors.New("invalid JSON body: " + strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}
