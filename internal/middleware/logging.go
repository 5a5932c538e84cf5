package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/metrics"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/tracing"
)

// LoggingMiddleware writes one structured line per request and feeds the HTTP metrics.
type LoggingMiddleware struct {
	logger logger.Logger
}

func NewLoggingMiddleware(log logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: log}
}

func (m *LoggingMiddleware) Log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		elapsed := time.Since(start)
		route := routeTemplate(r)
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapped.statusCode), elapsed.Seconds())

		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      wrapped.statusCode,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  RequestIDFromContext(r.Context()),
			"ip":          r.RemoteAddr,
		}
		if traceID := tracing.TraceID(r.Context()); traceID != "" {
			fields["trace_id"] = traceID
		}
		if actor, ok := ActorFromContext(r.Context()); ok {
			fields["actor"] = actor.ID
		}

		switch {
		case wrapped.statusCode >= 500:
			m.logger.Error("HTTP Request", fields)
		case wrapped.statusCode >= 400:
			m.logger.Warn("HTTP Request", fields)
		default:
			m.logger.Info("HTTP Request", fields)
		}
	})
}

// routeTemplate keeps metric labels bounded: /api/v1/payments/{id} rather than every id.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
