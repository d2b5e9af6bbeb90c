package httpmw

import (
	"net/http"
	"net/url"
	"strings"
)

// NormalizePath strips an external mount prefix from p. The prefix only
// matches on a segment boundary, so "/strapi" matches "/strapi" and
// "/strapi/api" but not "/strapiX". An empty result becomes "/". Paths
// without the prefix are returned unchanged.
func NormalizePath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	if !strings.HasPrefix(p, prefix) {
		return p
	}
	rest := p[len(prefix):]
	if rest != "" && rest[0] != '/' {
		return p
	}
	if rest == "" {
		return "/"
	}
	return rest
}

// StripPrefix rewrites requests arriving under an external prefix to the
// internal routing path before anything else sees them. It never
// terminates a request.
func StripPrefix(prefix string) Middleware {
	prefix = strings.TrimRight(prefix, "/")
	return func(next http.Handler) http.Handler {
		if prefix == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := NormalizePath(prefix, r.URL.Path)
			if p == r.URL.Path {
				next.ServeHTTP(w, r)
				return
			}
			r2 := r.Clone(r.Context())
			r2.URL.Path = p
			if r.URL.RawPath != "" {
				r2.URL.RawPath = stripRawPrefix(prefix, r.URL.RawPath)
			}
			r2.RequestURI = r2.URL.RequestURI()
			next.ServeHTTP(w, r2)
		})
	}
}

// stripRawPrefix drops the segments of the escaped path that decode to the
// prefix segments, so a percent-encoded prefix is stripped too and escapes in
// the remainder survive. It returns "" when raw does not line up with prefix,
// which makes the URL derive its escaped form from Path.
func stripRawPrefix(prefix, raw string) string {
	want := strings.Split(prefix, "/")
	got := strings.Split(raw, "/")
	if len(got) < len(want) {
		return ""
	}
	for i, seg := range want {
		dec, err := url.PathUnescape(got[i])
		if err != nil || dec != seg {
			return ""
		}
	}
	rest := strings.Join(got[len(want):], "/")
	if rest == "" {
		return "/"
	}
	return "/" + rest
}
