package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Devmainman/kurosadmin/pkg/logger"
)

// UserFunc reports the signed-in console user for a request, or "".
type UserFunc func(ctx context.Context) string

// RequestLogger stores a request-scoped logger in the context, enriched with
// the correlation id, the signed-in user and the trace ids. Mount it after
// RequestLogging and Tracing.
func RequestLogger(base *slog.Logger, user UserFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if user != nil {
				if id := user(ctx); id != "" {
					ctx = logger.WithUserID(ctx, id)
				}
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
