package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/testforge/casegen/pkg/httputil"
)

// LoggingMiddleware logs HTTP requests
type LoggingMiddleware struct {
	logger *zap.Logger
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Handler returns the middleware handler. It expects chi's RequestID
// middleware to run first and echoes the ID back to the client.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		requestID := chimw.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(chimw.RequestIDHeader, requestID)
		}

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
			zap.String("remote_addr", r.RemoteAddr),
		}

		switch {
		case status >= 500:
			m.logger.Error("HTTP request", fields...)
		case status >= 400:
			m.logger.Warn("HTTP request", fields...)
		default:
			m.logger.Info("HTTP request", fields...)
		}
	})
}

// Recoverer turns a handler panic into a JSON 500 and logs the stack.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("Panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
					zap.String("request_id", chimw.GetReqID(r.Context())),
				)
				httputil.JSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize caps request bodies at limit bytes
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
