package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const slowRequestThreshold = 3 * time.Second

// Logging returns a middleware that records one line per request: method,
// path, status, duration and the correlating request id. Slow requests are
// additionally logged at warn level.
func Logging(logger log.Logger) middleware.Middleware {
	helper := log.NewHelper(logger)
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method string
				path   string
				ip     string
			)
			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					ip = extractClientIP(httpReq)
				}
			}

			reply, err := handler(ctx, req)

			duration := time.Since(startTime)
			status := 200
			reason := ""
			if err != nil {
				se := errors.FromError(err)
				status = int(se.Code)
				reason = se.Reason
			}

			kv := []interface{}{
				"msg", "request",
				"method", method,
				"path", path,
				"status", status,
				"duration_ms", duration.Milliseconds(),
				"ip", ip,
				"request_id", RequestIDFromContext(ctx),
			}
			if reason != "" {
				kv = append(kv, "reason", reason)
			}

			switch {
			case status >= 500:
				helper.Errorw(kv...)
			case status >= 400:
				helper.Warnw(kv...)
			default:
				helper.Infow(kv...)
			}

			if duration > slowRequestThreshold {
				helper.Warnw(
					"msg", "slow request",
					"method", method,
					"path", path,
					"duration_ms", duration.Milliseconds(),
					"request_id", RequestIDFromContext(ctx),
				)
			}

			return reply, err
		}
	}
}

// extractClientIP prefers proxy headers over the raw remote address.
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	return req.RemoteAddr
}
