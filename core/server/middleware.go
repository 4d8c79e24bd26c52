package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/m3rciful/propbot/core/logger"

	"github.com/go-chi/chi/v5/middleware"
)

// correlate guarantees every request carries a UUID request id before chi's
// RequestID middleware copies it into the context.
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader))
		if rid == "" {
			rid = logger.NewRID()
			r.Header.Set(middleware.RequestIDHeader, rid)
		}
		w.Header().Set(middleware.RequestIDHeader, rid)
		next.ServeHTTP(w, r)
	})
}

// requestLogger stores the rid and a component logger in the request context
// and logs one summary line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRID(r.Context(), middleware.GetReqID(r.Context()))
		ctx = logger.WithLogger(ctx, logger.Component(component))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		} else if status >= http.StatusBadRequest {
			level = slog.LevelWarn
		}
		if level == slog.LevelDebug && !logger.ShouldSampleDebug() {
			return
		}
		logger.LogEvent(ctx, logger.Component(component), level, "http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_code", status),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	})
}

// recoverer turns a handler panic into a 500 and logs it with the stack.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(r.Context(), component, "http.panic",
					slog.Any("err", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
