package servicex

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/logx"
	"go.eggybyte.com/o11y/metricx"
)

// Middleware runs each request inside a metric scope and a root span.
// The root span receives every root span field when the request completes.
func (k *Kit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := metricx.WithScope(r.Context())
		ctx, span := k.Spans.StartRootSpan(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer k.Spans.EndSpan(span)

		logx.FromContext(ctx, k.Logger).Debug("request started",
			log.Str("method", r.Method),
			log.Str("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
