package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/censo/idgen"
	"github.com/hazyhaar/censo/kit"
)

var newTraceID = idgen.NanoID(12)

// TraceID assigns a trace ID to each request, or keeps the caller's
// X-Trace-ID, and injects it into the context, the response headers and a
// per-request logger. The ID is stored under kit.TraceIDKey and the logger
// under LoggerKey.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" || len(traceID) > 64 {
			traceID = newTraceID()
		}

		ctx := kit.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request", "remote_addr", ExtractIP(r))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
