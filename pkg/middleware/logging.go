package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/assetdesk/pkg/composables"
	"github.com/iota-uz/assetdesk/pkg/httpapi"
)

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	if !w.statusWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func getRequestID(r *http.Request, header string) string {
	if id := r.Header.Get(header); len(id) > 0 {
		return id
	}
	return uuid.New().String()
}

var tracer = otel.Tracer("assetdesk-middleware")

func TracedMiddleware(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(
				ctx,
				"middleware."+name,
				trace.WithAttributes(
					attribute.String("middleware.name", name),
					attribute.String("http.method", r.Method),
					attribute.String("http.url", r.URL.String()),
				),
			)
			defer span.End()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithLogger stores a request-scoped entry and request id in the context, logs the request outcome,
// and turns handler panics into a 500 envelope.
func WithLogger(logger *logrus.Logger, requestIDHeader string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := getRequestID(r, requestIDHeader)

			fieldsLogger := logger.WithFields(logrus.Fields{
				"request-id": requestID,
				"path":       r.URL.Path,
				"method":     r.Method,
			})
			ctx := composables.WithLogger(r.Context(), fieldsLogger)
			ctx = composables.WithRequestID(ctx, requestID)

			rw := &responseCaptureWriter{ResponseWriter: w}
			defer func() {
				if rec := recover(); rec != nil {
					fieldsLogger.WithField("stack", string(debug.Stack())).Errorf("panic: %v", rec)
					_ = httpapi.WriteError(rw, http.StatusInternalServerError, "INTERNAL", "internal error",
						map[string]string{"request_id": requestID})
				}
				fieldsLogger.WithFields(logrus.Fields{
					"status":      rw.Status(),
					"duration-ms": time.Since(start).Milliseconds(),
				}).Info("request completed")
			}()

			w.Header().Set(requestIDHeader, requestID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
