package obs

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StatusRecorder wraps ResponseWriter to capture status code and bytes written.
type StatusRecorder struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

// NewStatusRecorder constructs a status recorder with default 200 status.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader stores the status code before delegating.
func (sr *StatusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Write records the number of bytes written.
func (sr *StatusRecorder) Write(p []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(p)
	sr.bytesWritten += int64(n)
	return n, err
}

// Status returns the response status code.
func (sr *StatusRecorder) Status() int { return sr.status }

// BytesWritten returns the number of bytes written to the client.
func (sr *StatusRecorder) BytesWritten() int64 { return sr.bytesWritten }

// HTTPObs instruments a chi router with request spans, metrics and one
// structured log line per request. Metrics and Logger are optional.
type HTTPObs struct {
	Metrics *HTTPMetrics
	Logger  *zerolog.Logger
	Tracer  string
}

// Middleware implements chi middleware.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	tracerName := o.Tracer
	if tracerName == "" {
		tracerName = "http.server"
	}
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method)
		recorder := NewStatusRecorder(w)
		if o.Metrics != nil {
			o.Metrics.InFlight.Inc()
		}
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))
		elapsed := time.Since(start)
		if o.Metrics != nil {
			o.Metrics.InFlight.Dec()
		}

		// chi fills the pattern while routing, so it is only known afterwards.
		route := routePattern(r)
		span.SetName(fmt.Sprintf("%s %s", r.Method, route))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", r.URL.Path),
			attribute.Int("http.status_code", recorder.Status()),
		)
		if recorder.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.Status()))
		}
		span.End()

		if o.Metrics != nil {
			o.Metrics.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.Status())).Inc()
			o.Metrics.ReqDur.WithLabelValues(r.Method, route).Observe(DurationMillis(elapsed))
		}
		if o.Logger != nil {
			o.logRequest(r, recorder, route, elapsed, span.SpanContext())
		}
	})
}

func (o HTTPObs) logRequest(r *http.Request, recorder *StatusRecorder, route string, elapsed time.Duration, spanCtx trace.SpanContext) {
	evt := o.Logger.Info().
		Str("method", r.Method).
		Str("route", route).
		Str("path", r.URL.Path).
		Int("status", recorder.Status()).
		Int64("duration_ms", elapsed.Milliseconds()).
		Int64("bytes", recorder.BytesWritten()).
		Str("request_id", middleware.GetReqID(r.Context()))
	if spanCtx.IsValid() {
		evt = evt.Str("trace_id", spanCtx.TraceID().String()).Str("span_id", spanCtx.SpanID().String())
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		evt = evt.Str("user_agent", ua)
	}
	evt.Msg("http_request")
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
