package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ContentInfo reports which content snapshot is being served. Stores that
// have no notion of a snapshot return empty strings.
type ContentInfo interface {
	ContentVersion() string
	ContentHash() string
}

// ContentHeaders stamps X-Content-Bundle-Version and a short X-Content-Hash
// on every response and tags the span with the full values.
func ContentHeaders(info ContentInfo) Middleware {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ver, hash := info.ContentVersion(), info.ContentHash()
			if ver != "" {
				w.Header().Set("X-Content-Bundle-Version", ver)
			}
			if hash != "" {
				w.Header().Set("X-Content-Hash", shortHash(hash))
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("content.version", ver),
					attribute.String("content.hash", hash),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
