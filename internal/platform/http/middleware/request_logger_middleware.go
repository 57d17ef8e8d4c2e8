// Package middleware provides always-on transport middleware for HTTP servers.
package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ideaforge/ideaforge-go/internal/platform/appctx"
	"github.com/ideaforge/ideaforge-go/internal/platform/http/realip"
)

// RequestLoggerMiddleware attaches a request-scoped logger to the request context.
//
// This middleware must run AFTER middleware.RequestID so that
// middleware.GetReqID(r.Context()) returns a non-empty value.
func RequestLoggerMiddleware(base *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := chimw.GetReqID(r.Context())
			clientIP := "unknown"
			if trustedProxies != nil {
				clientIP = trustedProxies.GetClientIPString(r)
			}

			// These fields are inherited by the access log and any handler
			// that uses appctx.GetLogger(r.Context()).
			reqLogger := base.With(
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path, // path only, no query string
				"client_ip", clientIP,
			)

			ctx := appctx.WithLogger(r.Context(), reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
