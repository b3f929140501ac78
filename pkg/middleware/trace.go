package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/tracing"
)

// TraceHeader carries the trace id in both directions.
const TraceHeader = "X-Trace-ID"

// Trace opens a root span per request, reusing the caller's trace id when
// one is sent, and logs the finished span tree at debug level.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = tracing.NewTraceID()
		}
		w.Header().Set(TraceHeader, traceID)
		ctx, span := tracing.Start(r.Context(), r.Method+" "+normalizePath(r.URL.Path), traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
		span.End()
		span.Log(ctx, logger.FromContext(ctx))
	})
}
