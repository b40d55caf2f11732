package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Middleware wraps an HTTP handler with otelhttp instrumentation.
func Middleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server")
}
