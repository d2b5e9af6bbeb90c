package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/strapi/api/x", "/api/x"},
		{"/strapi", "/"},
		{"/strapi/", "/"},
		{"/api/x", "/api/x"},
		{"/", "/"},
		{"/strapix/api", "/strapix/api"},
		{"/api/strapi/x", "/api/strapi/x"},
		{"/strapi/strapi/api", "/strapi/api"},
	}
	for _, tc := range cases {
		if got := NormalizePath("/strapi", tc.in); got != tc.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePath_EmptyPrefixIsPassthrough(t *testing.T) {
	for _, p := range []string{"", "/"} {
		if got := NormalizePath(p, "/api/x"); got != "/api/x" {
			t.Fatalf("prefix %q: got %q", p, got)
		}
	}
}

func TestNormalizePath_StableOnCanonicalPaths(t *testing.T) {
	for _, p := range []string{"/", "/api/x", "/api/site-content"} {
		once := NormalizePath("/strapi", p)
		if twice := NormalizePath("/strapi", once); twice != once {
			t.Fatalf("%q: %q then %q", p, once, twice)
		}
	}
}

func TestStripPrefix_RewritesBeforeNext(t *testing.T) {
	var gotPath, gotURI string
	h := StripPrefix("/strapi/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotURI = r.URL.Path, r.RequestURI
	}))

	req := httptest.NewRequest(http.MethodGet, "/strapi/api/site-content?locale=hi", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotPath != "/api/site-content" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotURI != "/api/site-content?locale=hi" {
		t.Fatalf("RequestURI = %q", gotURI)
	}
	if req.URL.Path != "/strapi/api/site-content" {
		t.Fatal("original request must not be mutated")
	}
}

func TestStripPrefix_RootAndPassthrough(t *testing.T) {
	var got string
	h := StripPrefix("/strapi")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/strapi", nil))
	if got != "/" {
		t.Fatalf("bare prefix became %q, want /", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Fatal("normalizer must always call onward")
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/x", nil))
	if got != "/api/x" {
		t.Fatalf("unprefixed path became %q", got)
	}
}

func TestStripPrefix_EncodedPath(t *testing.T) {
	var path, raw string
	h := StripPrefix("/strapi")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, raw = r.URL.Path, r.URL.RawPath
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/strapi/api/a%2Fb", nil))

	if path != "/api/a/b" || raw != "/api/a%2Fb" {
		t.Fatalf("path=%q raw=%q", path, raw)
	}
}

func TestStripPrefix_EncodedPrefix(t *testing.T) {
	var path, escaped string
	h := StripPrefix("/strapi")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, escaped = r.URL.Path, r.URL.EscapedPath()
	}))

	cases := []struct {
		in, path, escaped string
	}{
		{"/%73trapi/api/site-content", "/api/site-content", "/api/site-content"},
		{"/%73trapi/api/a%2Fb", "/api/a/b", "/api/a%2Fb"},
		{"/%73trapi", "/", "/"},
	}
	for _, tc := range cases {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.in, nil))
		if path != tc.path || escaped != tc.escaped {
			t.Errorf("%s: path=%q escaped=%q, want %q %q", tc.in, path, escaped, tc.path, tc.escaped)
		}
	}
}

func TestStripPrefix_EncodedPrefixRoutes(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/site-content", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	StripPrefix("/strapi")(r).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/%73trapi/api/site-content", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want route match", rec.Code)
	}
}
