// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the service.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	SessionIDKey         = "session.id"
	SessionOperationKey  = "session.operation"
	SessionGenerationKey = "session.generation"

	WorkerPIDKey      = "worker.pid"
	WorkerExitCodeKey = "worker.exit_code"

	CatalogProviderKey = "catalog.provider_id"
	CatalogChannelsKey = "catalog.channels"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes identify a supervisor operation. Empty values are omitted.
func SessionAttributes(sessionID, op string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if op != "" {
		attrs = append(attrs, attribute.String(SessionOperationKey, op))
	}
	return attrs
}

// WorkerAttributes describe a worker process.
func WorkerAttributes(generation uint64, pid int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(SessionGenerationKey, int64(generation)),
		attribute.Int(WorkerPIDKey, pid),
	}
}

// CatalogAttributes describe a provider refresh.
func CatalogAttributes(providerID string, channels int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CatalogProviderKey, providerID),
		attribute.Int(CatalogChannelsKey, channels),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
