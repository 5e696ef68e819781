// Package middleware provides HTTP middleware for request identification and logging.
package middleware

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDContextKey contextKey = "request_id"

// RequestID returns a middleware that propagates the X-Request-ID header
// into the request context, generating one when the client sent none. The
// id is echoed back on the response so callers can correlate logs.
func RequestID() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			requestID := ""
			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					requestID = ht.Request().Header.Get("X-Request-ID")
				}
				if requestID == "" {
					requestID = generateRequestID()
				}
				tr.ReplyHeader().Set("X-Request-ID", requestID)
			}
			if requestID != "" {
				ctx = context.WithValue(ctx, requestIDContextKey, requestID)
			}
			return handler(ctx, req)
		}
	}
}

// RequestIDFromContext returns the request id injected by RequestID, or ""
// when the middleware did not run.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

func generateRequestID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + strconv.FormatInt(rand.Int63n(36*36*36), 36)
}
