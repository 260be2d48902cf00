// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps domain errors onto status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
)

// Error codes carried in the "code" field of error bodies.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeValidation      = "validation_error"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal_error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message, Code: code})
}

// statusFor maps an error kind onto an HTTP status and code.
func statusFor(err error) (int, string) {
	switch core.Kind(err) {
	case core.ErrUnauthenticated:
		return http.StatusUnauthorized, CodeUnauthenticated
	case core.ErrValidation:
		return http.StatusUnprocessableEntity, CodeValidation
	case core.ErrNotFound:
		return http.StatusNotFound, CodeNotFound
	case core.ErrConflict:
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError renders err. Unclassified errors are logged and replaced by a
// generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.NewFields().
				WithError(err).
				WithHTTPRequest(r.Method, r.URL.Path, "", "").
				Add(applog.FieldErrorType, applog.ErrorTypeInternal).
				ToSlice()...)
		msg = "internal server error"
	}
	if errors.Is(err, core.ErrUnauthenticated) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="spendwise"`)
	}
	ErrorResponse(status, code, msg).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
