// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ManuGH/hlsrelay/internal/catalog"
	"github.com/ManuGH/hlsrelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/hlsrelay/internal/domain/session/manager"
	"github.com/ManuGH/hlsrelay/internal/log"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeConflict       = "CONFLICT"
	CodeSpawnFailed    = "SPAWN_FAILED"
	CodeUpstreamFailed = "UPSTREAM_FAILED"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInternal       = "INTERNAL"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
// If encoding fails, headers are already sent, so the failure is only logged.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Int("status", code).
			Msg("failed to encode JSON response")
	}
}

// classify maps domain errors onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, lifecycle.ErrValidation), errors.Is(err, catalog.ErrInvalid):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, lifecycle.ErrAlreadyExists):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, lifecycle.ErrSpawn):
		return http.StatusBadGateway, CodeSpawnFailed
	case errors.Is(err, catalog.ErrFetch):
		return http.StatusBadGateway, CodeUpstreamFailed
	case errors.Is(err, manager.ErrShuttingDown):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError maps err and writes the JSON error body. Internal errors are
// logged and their text is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "api.internal_error").
			Str("method", r.Method).
			Str(log.FieldPath, r.URL.Path).
			Msg("request failed")
		msg = "internal server error"
	}
	writeErrorBody(w, r, status, code, msg)
}

// writeErrorBody writes an error body carrying the request id.
func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, r, status, ErrorBody{
		Error:     msg,
		Code:      code,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// decodeJSON strictly decodes a bounded request body into dst.
// An empty body leaves dst untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return lifecycle.NewValidation("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	if dec.More() {
		return lifecycle.NewValidation("body", "trailing data after JSON object")
	}
	return nil
}
