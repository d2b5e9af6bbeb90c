package httpmw

import (
	"context"
	"net/http"
	"time"
)

// Deadline bounds the request context. Handlers see context.DeadlineExceeded
// and decide the response themselves; nothing is written here.
func Deadline(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
