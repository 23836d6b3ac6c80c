package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/roomcast/pkg/httputil"
	"github.com/cwrk-planet/roomcast/pkg/logger"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const loggerKey ctxKey = iota

// WithRequestLoggerCtx кладёт *slog.Logger с req_id/path/method в контекст.
func WithRequestLoggerCtx(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID, _ := httputil.FromContext(r.Context())
			l := base.With(
				slog.String("req_id", reqID),
				slog.String("path", r.URL.Path),
				slog.String("method", r.Method),
			)
			ctx := context.WithValue(r.Context(), loggerKey, l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// L извлекает логгер из контекста, а если его нет — возвращает глобальный.
func L(ctx context.Context) *slog.Logger {
	if v := ctx.Value(loggerKey); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return logger.L()
}

// RequestLogger пишет одну запись на запрос. WrapResponseWriter сохраняет
// http.Hijacker, без него апгрейд /ws не работает.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_ip", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
			slog.String("query", r.URL.RawQuery),
		}
		attrs = append(attrs, logger.AttrsFromCtx(r.Context())...)
		L(r.Context()).LogAttrs(r.Context(), level, "http_request", attrs...)
	})
}
