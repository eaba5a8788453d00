// Package shield provides the HTTP middleware stack of the formwatch status
// API: HEAD routing, security headers, JSON body limits and request
// tracing. The stack is meant for a chi router.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.APIStack()...)
package shield

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody caps request bodies of the API (64 KiB).
const DefaultMaxBody int64 = 64 << 10

// APIStack returns the standard middleware stack, ordered:
// GetHead → SecurityHeaders → MaxBody → TraceID. GetHead answers HEAD
// with the GET route and needs the chi routing context.
func APIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.GetHead,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		TraceID,
	}
}
