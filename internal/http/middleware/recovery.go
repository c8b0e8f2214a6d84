package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/jmylchreest/streampulse/internal/observability"
)

// Recovery recovers from handler panics, logs them, and returns a 500. The
// request-scoped logger from the context is used when one is present.
func Recovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					observability.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "panic recovered",
						slog.Any("error", err),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
