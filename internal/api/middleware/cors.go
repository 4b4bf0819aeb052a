// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns a middleware that sets Cross-Origin Resource Sharing headers
// for the configured origins. "*" allows every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderRequestID, "Authorization"},
		ExposedHeaders: []string{"Retry-After", HeaderRequestID},
		MaxAge:         600,
	})
}
